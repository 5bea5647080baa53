package policy

import (
	"schoolhub/authority"
	"schoolhub/common"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

// AuditEvent records one authorization decision or one data-access filter
// application. Decisions and filters funnel through RecordAuditFunc so call
// sites never log on their own.
type AuditEvent struct {
	Resource string           `json:"resource"`
	Action   authority.Action `json:"action"`

	UserID   types.ID `json:"userId"`
	TenantID types.ID `json:"tenantId"`

	Decision string          `json:"decision"` // allow or deny
	Reason   string          `json:"reason"`
	Scope    authority.Scope `json:"scope,omitempty"`

	Entity    string `json:"entity,omitempty"`
	Operation string `json:"operation,omitempty"`
}

var RecordAuditFunc = RecordAudit

// RecordAudit emits the event as a structured log entry. A sink failure must
// never block the decision from being returned.
func RecordAudit(e AuditEvent) {
	defer func() {
		if ret := recover(); ret != nil {
			common.Log.Warnf("audit sink failure: %v", ret)
		}
	}()

	fields := logrus.Fields{
		"resource": e.Resource,
		"action":   e.Action,
		"userId":   e.UserID,
		"tenantId": e.TenantID,
		"decision": e.Decision,
		"reason":   e.Reason,
	}
	if e.Scope != "" {
		fields["scope"] = e.Scope
	}
	if e.Entity != "" {
		fields["entity"] = e.Entity
		fields["operation"] = e.Operation
	}
	common.Log.WithFields(fields).Info("authorization decision")
}
