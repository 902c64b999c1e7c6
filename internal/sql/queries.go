// Package sql embeds the schema migrations and query text.
package sql

import (
	"embed"
)

// Migrations holds migrations/*.sql, applied in filename order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/billings_in_window.sql
var BillingsInWindow string

//go:embed queries/billings_by_visit.sql
var BillingsByVisit string

//go:embed queries/prescriptions_in_window.sql
var PrescriptionsInWindow string

//go:embed queries/clinical_tests_in_window.sql
var ClinicalTestsInWindow string

//go:embed queries/emr_in_window.sql
var EMRInWindow string

//go:embed queries/tariffs.sql
var Tariffs string

//go:embed queries/insert_alert.sql
var InsertAlert string

//go:embed queries/list_alerts.sql
var ListAlerts string

//go:embed queries/get_alert.sql
var GetAlert string

//go:embed queries/update_alert_status.sql
var UpdateAlertStatus string

//go:embed queries/alerts_by_status.sql
var AlertsByStatus string

//go:embed queries/alerts_by_type.sql
var AlertsByType string

//go:embed queries/count_alerts_since.sql
var CountAlertsSince string

//go:embed queries/truncate_his.sql
var TruncateHIS string
