// Package sql embeds the schema migrations and the named queries the store
// executes. Keeping SQL in files keeps the statements reviewable as SQL.
package sql

import "embed"

// Migrations holds the schema migration files, applied in filename order.
//
//go:embed migrations
var Migrations embed.FS

//go:embed queries/upsert_patient.sql
var UpsertPatient string

//go:embed queries/set_cohort_flag.sql
var SetCohortFlag string

//go:embed queries/find_patient_id.sql
var FindPatientID string

//go:embed queries/insert_visit.sql
var InsertVisit string

//go:embed queries/find_canonical_visit.sql
var FindCanonicalVisit string

//go:embed queries/insert_prescription.sql
var InsertPrescription string

//go:embed queries/update_visit_risk_if_unset.sql
var UpdateVisitRiskIfUnset string

//go:embed queries/update_patient_sex_if_undefined.sql
var UpdatePatientSexIfUndefined string

//go:embed queries/reset_tables.sql
var ResetTables string

//go:embed queries/patient_exists.sql
var PatientExists string

//go:embed queries/visits_between.sql
var VisitsBetween string

//go:embed queries/meds_for_visits.sql
var MedsForVisits string

//go:embed queries/dashboard_counts.sql
var DashboardCounts string

//go:embed queries/dashboard_sex_counts.sql
var DashboardSexCounts string

//go:embed queries/dashboard_top_diagnoses.sql
var DashboardTopDiagnoses string

//go:embed queries/dashboard_medications.sql
var DashboardMedications string
