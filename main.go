package main

import (
	"log"
	"net/http"

	"schoolhub/account"
	"schoolhub/authority"
	"schoolhub/bizerror"
	"schoolhub/client/rediscache"
	"schoolhub/domain/class"
	"schoolhub/domain/student"
	"schoolhub/infra/tracing"
	"schoolhub/persistence"
	"schoolhub/policy"
	"schoolhub/servehttp"
	"schoolhub/session"
	"schoolhub/sessions"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("service start")

	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		log.Fatalf("parse database config failed %v\n", err)
	}

	// create database (no conflict)
	if dbConfig.DriverType == "mysql" {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			log.Fatalf("failed to prepare database %v\n", err)
		}
	}

	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		log.Fatalf("database connection failed %v\n", err)
	}
	defer ds.Stop()
	persistence.ActiveDataSourceManager = ds

	// database migration (race condition)
	err = ds.GormDB().AutoMigrate(
		&authority.Permission{}, &authority.Role{}, &authority.PolicyAssignment{}, &authority.RoleAssignment{},
		&account.User{},
		&class.Class{}, &class.TeacherClass{},
		&student.Student{}, &student.ParentStudent{},
	).Error
	if err != nil {
		log.Fatalf("database migration failed %v\n", err)
	}

	if err := account.DefaultSecurityConfiguration(); err != nil {
		log.Fatalf("security bootstrap failed %v\n", err)
	}

	// the role cache is optional: without REDIS_SERVICE every resolution goes
	// to the source of truth
	if cacheClient := rediscache.NewClientFromEnv(); cacheClient != nil {
		defer cacheClient.Close()
		policy.Resolver = policy.NewRoleResolver(cacheClient)
	}
	session.LoadRolesFunc = policy.ResolveRoles

	engine := gin.New()
	engine.Use(gin.Recovery(), bizerror.ErrorHandling(), tracing.TracingIngress())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "schoolhub")
	})

	sessions.RegisterSessionsHandler(engine)
	sessions.RegisterSessionHandler(engine, session.SimpleAuthFilter())
	policy.RegisterRolesRestAPI(engine, session.SimpleAuthFilter())
	policy.RegisterPermissionsRestAPI(engine, session.SimpleAuthFilter(),
		servehttp.Guard("roles", authority.ActionRead))
	class.RegisterClassesRestAPI(engine, session.SimpleAuthFilter())
	student.RegisterStudentsRestAPI(engine, session.SimpleAuthFilter())

	servehttp.StartHTTPServer(engine)
}
