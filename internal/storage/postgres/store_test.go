package postgres

import (
	"strings"
	"testing"

	"tmbulk/internal/schema"
)

func TestColDDL(t *testing.T) {
	cases := []struct {
		col  schema.Column
		want string
	}{
		{schema.Column{Name: "serial_no", Type: schema.TypeBigInt}, `"serial_no" BIGINT`},
		{schema.Column{Name: "filing_date", Type: schema.TypeDate}, `"filing_date" DATE`},
		{schema.Column{Name: "trade_mark_in", Type: schema.TypeFlag}, `"trade_mark_in" CHAR(1)`},
		{schema.Column{Name: "batch_number", Type: schema.TypeInt}, `"batch_number" INTEGER`},
		{schema.Column{Name: "note", Type: schema.TypeText}, `"note" TEXT`},
	}
	for _, c := range cases {
		if got := colDDL(c.col); got != c.want {
			t.Errorf("colDDL(%v) = %q, want %q", c.col, got, c.want)
		}
	}
}

func TestUpdateSetFiltersAbsentColumns(t *testing.T) {
	got := updateSet([]string{"status_code", "status_date", "mark_identification"},
		[]string{"serial_no", "status_code"})
	if len(got) != 1 || got[0] != `"status_code" = EXCLUDED."status_code"` {
		t.Errorf("updateSet = %v", got)
	}
}

func TestPgIdentQuoting(t *testing.T) {
	if got := pgIdent(`odd"name`); got != `"odd""name"` {
		t.Errorf("pgIdent = %s", got)
	}
	joined := strings.Join(mapIdent([]string{"a", "b"}), ", ")
	if joined != `"a", "b"` {
		t.Errorf("mapIdent = %s", joined)
	}
}
