package schema

import (
	"strings"
	"testing"
)

func TestAddTableRejectsDuplicateTableName(t *testing.T) {
	b := NewBuilder()
	if err := b.AddTable(Table{Name: "T", Columns: []Column{Int32Column("a")}}); err != nil {
		t.Fatalf("first AddTable: %v", err)
	}
	if err := b.AddTable(Table{Name: "T", Columns: []Column{Int32Column("b")}}); err == nil {
		t.Fatalf("expected an error on duplicate table name")
	}
}

func TestAddTableRejectsDuplicateColumnName(t *testing.T) {
	b := NewBuilder()
	err := b.AddTable(Table{Name: "T", Columns: []Column{Int32Column("a"), Int32Column("a")}})
	if err == nil {
		t.Fatalf("expected an error on duplicate column name")
	}
}

func TestAddTableRejectsDefaultOnBlobColumn(t *testing.T) {
	b := NewBuilder()
	col := BlobColumn("data")
	col.Default = []byte("x")
	err := b.AddTable(Table{Name: "T", Columns: []Column{col}})
	if err == nil {
		t.Fatalf("expected an error for a blob column with a default value")
	}
}

func TestAddTableRejectsIndexOnUnknownColumn(t *testing.T) {
	b := NewBuilder()
	err := b.AddTable(Table{
		Name:    "T",
		Columns: []Column{Int32Column("a")},
		Indexes: []Index{{Columns: []string{"missing"}}},
	})
	if err == nil {
		t.Fatalf("expected an error for an index referencing an unknown column")
	}
}

func TestMaterializeEmitsCreateTableAndIndexDDL(t *testing.T) {
	b := NewBuilder()
	b.AddTable(Table{
		Name:    "Widgets",
		Columns: []Column{Int64Column("id"), TextColumn("name", "unnamed")},
		Indexes: []Index{{Columns: []string{"name"}}},
	})

	stmts := b.Materialize()
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements (1 table + 1 index), got %d: %v", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], `CREATE TABLE "Widgets"`) {
		t.Fatalf("unexpected table DDL: %s", stmts[0])
	}
	if !strings.Contains(stmts[0], "DEFAULT 'unnamed'") {
		t.Fatalf("expected default value in DDL: %s", stmts[0])
	}
	if !strings.HasPrefix(stmts[1], `CREATE INDEX "idx_Widgets_0"`) {
		t.Fatalf("unexpected index DDL: %s", stmts[1])
	}
}

func TestIDColumnRendersAsIntegerPrimaryKey(t *testing.T) {
	b := NewBuilder()
	b.AddTable(Table{Name: "T", Columns: []Column{IDColumn(), TextColumn("name")}})
	stmts := b.Materialize()
	if !strings.Contains(stmts[0], `"id" INTEGER PRIMARY KEY`) {
		t.Fatalf("expected id column to render as INTEGER PRIMARY KEY, got: %s", stmts[0])
	}
}

func TestFuzzyMatch(t *testing.T) {
	if !FuzzyMatch(1.0, 1.0, FuzzyEqual) {
		t.Fatalf("expected exact equality to match")
	}
	if FuzzyMatch(1.0, 2.0, FuzzyEqual) {
		t.Fatalf("expected distinct values not to match under FuzzyEqual")
	}
	if !FuzzyMatch(1.0, 2.0, FuzzyLessOrEqual) {
		t.Fatalf("expected 1.0 <= 2.0 to hold")
	}
	if FuzzyMatch(2.0, 1.0, FuzzyLessOrEqual) {
		t.Fatalf("expected 2.0 <= 1.0 to fail")
	}
	if !FuzzyMatch(2.0, 1.0, FuzzyGreaterOrEqual) {
		t.Fatalf("expected 2.0 >= 1.0 to hold")
	}
}
