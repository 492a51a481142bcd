package schema

// Static dataset descriptors. Column sets and alias tables are derived from
// the destination table definitions, not from the per-file source layouts;
// where historical source layouts disagreed (filing_dt vs filing_date,
// registration_no vs registration_number) the destination schema wins and the
// short forms are aliases into it.

// caseFileColumns is shared by the case-file datasets (economic CSV and the
// daily/yearly application XML). One row per application serial number.
var caseFileColumns = []Column{
	{"serial_no", TypeBigInt},
	{"registration_number", TypeBigInt},
	{"filing_date", TypeDate},
	{"registration_date", TypeDate},
	{"status_code", TypeText},
	{"status_date", TypeDate},
	{"mark_identification", TypeText},
	{"mark_drawing_code", TypeText},
	{"abandon_dt", TypeDate},
	{"publication_dt", TypeDate},
	{"renewal_dt", TypeDate},
	{"repub_12c_dt", TypeDate},
	{"reg_cancel_cd", TypeText},
	{"reg_cancel_dt", TypeDate},
	{"exm_attorney_name", TypeText},
	{"exm_office_cd", TypeText},
	{"cfh_status_cd", TypeInt},
	{"cfh_status_dt", TypeDate},
	{"trade_mark_in", TypeFlag},
	{"serv_mark_in", TypeFlag},
	{"cert_mark_in", TypeFlag},
	{"coll_trade_mark_in", TypeFlag},
	{"coll_serv_mark_in", TypeFlag},
	{"coll_memb_mark_in", TypeFlag},
	{"cancel_pend_in", TypeFlag},
	{"concur_use_in", TypeFlag},
	{"concur_use_pend_in", TypeFlag},
	{"concur_use_pub_in", TypeFlag},
	{"interfer_pend_in", TypeFlag},
	{"opposit_pend_in", TypeFlag},
	{"repub_12c_in", TypeFlag},
	{"std_char_claim_in", TypeFlag},
	{"for_priority_in", TypeFlag},
	{"lb_itu_file_in", TypeFlag},
	{"lb_itu_cur_in", TypeFlag},
	{"lb_use_file_in", TypeFlag},
	{"lb_use_cur_in", TypeFlag},
	{"supp_reg_in", TypeFlag},
	{"amend_supp_reg_in", TypeFlag},
	{"amend_principal_in", TypeFlag},
	{"renewal_file_in", TypeFlag},
	{"draw_color_file_in", TypeFlag},
	{"draw_color_cur_in", TypeFlag},
	{"draw_3d_file_in", TypeFlag},
	{"draw_3d_cur_in", TypeFlag},
	{"ir_registration_no", TypeText},
	{"ir_registration_dt", TypeDate},
	{"ir_publication_dt", TypeDate},
	{"ir_renewal_dt", TypeDate},
	{"ir_auto_reg_dt", TypeDate},
	{"ir_status_cd", TypeText},
	{"ir_status_dt", TypeDate},
	{"ir_priority_in", TypeFlag},
	{"ir_priority_dt", TypeDate},
	{"ir_first_refus_in", TypeFlag},
	{"ir_death_dt", TypeDate},
	{"data_source", TypeText},
	{"batch_number", TypeInt},
}

// caseFileAliases folds the historical short column names and the XML child
// element names into the destination schema.
var caseFileAliases = map[string]string{
	"serial_number":              "serial_no",
	"registration_no":            "registration_number",
	"filing_dt":                  "filing_date",
	"registration_dt":            "registration_date",
	"status_cd":                  "status_code",
	"status_dt":                  "status_date",
	"mark_id_char":               "mark_identification",
	"mark_draw_cd":               "mark_drawing_code",
	"abandon_date":               "abandon_dt",
	"publication_date":           "publication_dt",
	"published_for_opposition_date": "publication_dt",
	"renewal_date":               "renewal_dt",
	"repub_12c_date":             "repub_12c_dt",
	"reg_cancel_code":            "reg_cancel_cd",
	"reg_cancel_date":            "reg_cancel_dt",
	"examiner_attorney_name":     "exm_attorney_name",
	"law_office_assigned_location_code": "exm_office_cd",
	"cfh_status_code":            "cfh_status_cd",
	"cfh_status_date":            "cfh_status_dt",
	"ir_registration_number":     "ir_registration_no",
	"ir_registration_date":       "ir_registration_dt",
	"ir_publication_date":        "ir_publication_dt",
	"ir_renewal_date":            "ir_renewal_dt",
	"ir_auto_registration_date":  "ir_auto_reg_dt",
	"ir_status_code":             "ir_status_cd",
	"ir_status_date":             "ir_status_dt",
	"ir_priority_date":           "ir_priority_dt",
	"ir_first_refusal_in":        "ir_first_refus_in",
	"ir_death_date":              "ir_death_dt",
}

// caseFileUpdateColumns are the slowly-changing fields refreshed when a daily
// file revisits a serial number.
var caseFileUpdateColumns = []string{
	"registration_number", "registration_date", "status_code", "status_date",
	"mark_identification", "publication_dt", "renewal_dt",
	"cfh_status_cd", "cfh_status_dt", "data_source", "batch_number",
}

var assignmentColumns = []Column{
	{"assignment_id", TypeText},
	{"reel_no", TypeText},
	{"frame_no", TypeText},
	{"serial_no", TypeBigInt},
	{"registration_number", TypeBigInt},
	{"intl_reg_no", TypeText},
	{"date_recorded", TypeDate},
	{"conveyance_text", TypeText},
	{"last_update_date", TypeDate},
	{"purge_indicator", TypeFlag},
	{"page_count", TypeInt},
	{"correspondent_name", TypeText},
	{"correspondent_address_1", TypeText},
	{"correspondent_address_2", TypeText},
	{"correspondent_address_3", TypeText},
	{"assignor_name", TypeText},
	{"assignor_address", TypeText},
	{"assignee_name", TypeText},
	{"assignee_address", TypeText},
	{"tlt_mark_name", TypeText},
	{"tlt_mark_description", TypeText},
	{"data_source", TypeText},
	{"batch_number", TypeInt},
}

var assignmentAliases = map[string]string{
	"registration_no": "registration_number",
	"serial_number":   "serial_no",
}

var ttabColumns = []Column{
	{"proceeding_number", TypeText},
	{"proceeding_type", TypeText},
	{"filing_date", TypeDate},
	{"status", TypeText},
	{"status_date", TypeDate},
	{"applicant_name", TypeText},
	{"opposer_name", TypeText},
	{"mark_description", TypeText},
	{"goods_services", TypeText},
	{"data_source", TypeText},
	{"batch_number", TypeInt},
}

var ttabAliases = map[string]string{
	"number":            "proceeding_number",
	"type_code":         "proceeding_type",
	"proceeding_status": "status",
	"status_update_date": "status_date",
	"filing_dt":         "filing_date",
	"plaintiff_name":    "opposer_name",
	"defendant_name":    "applicant_name",
	"mark_text":         "mark_description",
	"goods_and_services": "goods_services",
}

var registryOrder = []string{
	"TRCFECO2", "TRTDXFAP", "TRTYRAP", "TRTDXFAG", "TRTYRAG", "TTABTDXF", "TTABYR",
}

var registry = map[string]Descriptor{
	"TRCFECO2": {
		ID:            "TRCFECO2",
		Table:         "trademark_case_files",
		Title:         "Trademark case file economics (CSV)",
		Columns:       caseFileColumns,
		Aliases:       caseFileAliases,
		Strategy:      StrategyFlat,
		KeyColumns:    []string{"serial_no"},
		Conflict:      ConflictUpdate,
		UpdateColumns: caseFileUpdateColumns,
		Latin1:        true,
	},
	"TRTDXFAP": {
		ID:            "TRTDXFAP",
		Table:         "trademark_case_files",
		Title:         "Trademark daily application XML",
		RecordTag:     "case-file",
		Columns:       caseFileColumns,
		Aliases:       caseFileAliases,
		Strategy:      StrategyNestedSingle,
		KeyColumns:    []string{"serial_no"},
		Conflict:      ConflictUpdate,
		UpdateColumns: caseFileUpdateColumns,
	},
	"TRTYRAP": {
		ID:         "TRTYRAP",
		Table:      "trademark_case_files",
		Title:      "Trademark annual application XML",
		RecordTag:  "case-file",
		Columns:    caseFileColumns,
		Aliases:    caseFileAliases,
		Strategy:   StrategyNestedSingle,
		KeyColumns: []string{"serial_no"},
		Conflict:   ConflictIgnore,
	},
	"TRTDXFAG": {
		ID:         "TRTDXFAG",
		Table:      "trademark_assignments",
		Title:      "Trademark daily assignment XML",
		RecordTag:  "assignment-entry",
		Columns:    assignmentColumns,
		Aliases:    assignmentAliases,
		Strategy:   StrategyNestedFanout,
		KeyColumns: []string{"assignment_id", "serial_no"},
		Conflict:   ConflictIgnore,
	},
	"TRTYRAG": {
		ID:         "TRTYRAG",
		Table:      "trademark_assignments",
		Title:      "Trademark annual assignment XML",
		RecordTag:  "assignment-entry",
		Columns:    assignmentColumns,
		Aliases:    assignmentAliases,
		Strategy:   StrategyNestedFanout,
		KeyColumns: []string{"assignment_id", "serial_no"},
		Conflict:   ConflictIgnore,
	},
	"TTABTDXF": {
		ID:            "TTABTDXF",
		Table:         "ttab_proceedings",
		Title:         "TTAB daily proceedings XML",
		RecordTag:     "proceeding",
		AltRecordTags: []string{"ttab-proceeding"},
		Columns:       ttabColumns,
		Aliases:       ttabAliases,
		Strategy:      StrategyFlat,
		KeyColumns:    []string{"proceeding_number"},
		Conflict:      ConflictIgnore,
	},
	"TTABYR": {
		ID:            "TTABYR",
		Table:         "ttab_proceedings",
		Title:         "TTAB annual proceedings XML",
		RecordTag:     "proceeding",
		AltRecordTags: []string{"ttab-proceeding"},
		Columns:       ttabColumns,
		Aliases:       ttabAliases,
		Strategy:      StrategyFlat,
		KeyColumns:    []string{"proceeding_number"},
		Conflict:      ConflictIgnore,
	},
}
