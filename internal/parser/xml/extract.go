package xmlparser

import (
	"fmt"
	"strings"

	"tmbulk/internal/normalize"
	"tmbulk/internal/schema"
	"tmbulk/pkg/records"
)

// ExtractorFor returns the extraction strategy for the dataset. Extractors
// emit raw string values under canonical column keys; type coercion (dates,
// flags, integers) happens downstream in the normalizer.
func ExtractorFor(desc schema.Descriptor) (ExtractFunc, error) {
	switch desc.Strategy {
	case schema.StrategyFlat:
		return extractFlat, nil
	case schema.StrategyNestedSingle:
		return extractCaseFile, nil
	case schema.StrategyNestedFanout:
		return extractAssignment, nil
	}
	return nil, fmt.Errorf("dataset %s: no extractor for strategy %q", desc.ID, desc.Strategy)
}

// put sets rec[key] to the trimmed text of n's child, skipping empty values.
func put(rec records.Record, key string, n *Node, child string) {
	if v := n.ChildText(child); v != "" {
		rec[key] = v
	}
}

// extractFlat emits one record per element, taking every leaf child's text
// under its cleaned element name. Container children are skipped; the flat
// datasets carry all their fields as direct leaves.
func extractFlat(n *Node) []records.Record {
	rec := make(records.Record, len(n.Children))
	for _, c := range n.Children {
		if len(c.Children) > 0 || c.Text == "" {
			continue
		}
		rec[normalize.CleanKey(c.Name)] = c.Text
	}
	if len(rec) == 0 {
		return nil
	}
	return []records.Record{rec}
}

// caseFileFlags maps the case-file-header indicator elements to their
// destination columns.
var caseFileFlags = map[string]string{
	"trademark-in":                     "trade_mark_in",
	"collective-trademark-in":          "coll_trade_mark_in",
	"service-mark-in":                  "serv_mark_in",
	"collective-service-mark-in":       "coll_serv_mark_in",
	"collective-membership-mark-in":    "coll_memb_mark_in",
	"certification-mark-in":            "cert_mark_in",
	"cancellation-pending-in":          "cancel_pend_in",
	"published-concurrent-in":          "concur_use_pub_in",
	"concurrent-use-in":                "concur_use_in",
	"concurrent-use-proceeding-in":     "concur_use_pend_in",
	"interference-pending-in":          "interfer_pend_in",
	"opposition-pending-in":            "opposit_pend_in",
	"section-12c-in":                   "repub_12c_in",
	"standard-characters-claimed-in":   "std_char_claim_in",
	"foreign-priority-in":              "for_priority_in",
	"intent-to-use-in":                 "lb_itu_file_in",
	"intent-to-use-current-in":         "lb_itu_cur_in",
	"filed-as-use-application-in":      "lb_use_file_in",
	"use-application-currently-in":     "lb_use_cur_in",
	"supplemental-register-amended-in": "amend_supp_reg_in",
	"supplemental-register-in":         "supp_reg_in",
	"principal-register-amended-in":    "amend_principal_in",
	"renewal-filed-in":                 "renewal_file_in",
	"color-drawing-filed-in":           "draw_color_file_in",
	"color-drawing-current-in":         "draw_color_cur_in",
	"drawing-3d-filed-in":              "draw_3d_file_in",
	"drawing-3d-current-in":            "draw_3d_cur_in",
}

// extractCaseFile emits exactly one record per case-file element, probing the
// case-file-header and international-registration subtrees.
func extractCaseFile(n *Node) []records.Record {
	rec := make(records.Record, 48)
	put(rec, "serial_no", n, "serial-number")
	put(rec, "registration_number", n, "registration-number")

	if h := n.Child("case-file-header"); h != nil {
		put(rec, "filing_date", h, "filing-date")
		put(rec, "registration_date", h, "registration-date")
		put(rec, "status_code", h, "status-code")
		put(rec, "status_date", h, "status-date")
		put(rec, "mark_identification", h, "mark-identification")
		put(rec, "mark_drawing_code", h, "mark-drawing-code")
		put(rec, "publication_dt", h, "published-for-opposition-date")
		put(rec, "renewal_dt", h, "renewal-date")
		put(rec, "exm_office_cd", h, "law-office-assigned-location-code")
		put(rec, "exm_attorney_name", h, "attorney-name")
		for tag, col := range caseFileFlags {
			put(rec, col, h, tag)
		}
	}

	if ir := n.Child("international-registration"); ir != nil {
		put(rec, "ir_registration_no", ir, "international-registration-number")
		put(rec, "ir_registration_dt", ir, "international-registration-date")
		put(rec, "ir_publication_dt", ir, "international-publication-date")
		put(rec, "ir_renewal_dt", ir, "international-renewal-date")
		put(rec, "ir_auto_reg_dt", ir, "auto-protection-date")
		put(rec, "ir_status_cd", ir, "international-status-code")
		put(rec, "ir_status_dt", ir, "international-status-date")
		put(rec, "ir_priority_in", ir, "priority-claimed-in")
		put(rec, "ir_priority_dt", ir, "priority-claimed-date")
		put(rec, "ir_first_refus_in", ir, "first-refusal-in")
	}

	return []records.Record{rec}
}

// extractAssignment fans one assignment-entry out over its properties: the
// shared assignment fields are extracted once and each property contributes
// its own identifiers. An entry without properties identifies no mark and
// emits nothing.
func extractAssignment(n *Node) []records.Record {
	base := make(records.Record, 24)

	if a := n.Child("assignment"); a != nil {
		put(base, "reel_no", a, "reel-no")
		put(base, "frame_no", a, "frame-no")
		put(base, "date_recorded", a, "date-recorded")
		put(base, "conveyance_text", a, "conveyance-text")
		put(base, "last_update_date", a, "last-update-date")
		put(base, "purge_indicator", a, "purge-indicator")
		put(base, "page_count", a, "page-count")
		if c := a.Child("correspondent"); c != nil {
			put(base, "correspondent_name", c, "person-or-organization-name")
			put(base, "correspondent_address_1", c, "address-1")
			put(base, "correspondent_address_2", c, "address-2")
			if v := joinParts(c.ChildText("address-3"), c.ChildText("address-4")); v != "" {
				base["correspondent_address_3"] = v
			}
		}
	}

	if first := n.Child("assignors").Child("assignor"); first != nil {
		put(base, "assignor_name", first, "person-or-organization-name")
		if v := partyAddress(first); v != "" {
			base["assignor_address"] = v
		}
	}
	if first := n.Child("assignees").Child("assignee"); first != nil {
		put(base, "assignee_name", first, "person-or-organization-name")
		if v := partyAddress(first); v != "" {
			base["assignee_address"] = v
		}
	}

	if reel, frame := base["reel_no"], base["frame_no"]; reel != nil && frame != nil {
		base["assignment_id"] = fmt.Sprintf("%v-%v", reel, frame)
	}

	props := n.Child("properties").All("property")
	out := make([]records.Record, 0, len(props))
	for _, p := range props {
		rec := base.Clone()
		put(rec, "serial_no", p, "serial-no")
		put(rec, "registration_number", p, "registration-no")
		put(rec, "intl_reg_no", p, "intl-reg-no")
		if tlt := p.Child("trademark-law-treaty-property"); tlt != nil {
			put(rec, "tlt_mark_name", tlt, "tlt-mark-name")
			put(rec, "tlt_mark_description", tlt, "tlt-mark-description")
		}
		out = append(out, rec)
	}
	return out
}

func partyAddress(n *Node) string {
	return joinParts(
		n.ChildText("address-1"),
		n.ChildText("address-2"),
		n.ChildText("city"),
		n.ChildText("state"),
		n.ChildText("postcode"),
	)
}

func joinParts(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
