package rdbms

import "testing"

func TestSchemaTable(t *testing.T) {
	st := NewSchemaTable("raw", "patient")
	if st.String() != "raw.patient" {
		t.Fatal("unexpected String(): ", st.String())
	}
	if st.GetSchema() != "raw" {
		t.Fatal("unexpected schema: ", st.GetSchema())
	}
	if st.GetTable() != "patient" {
		t.Fatal("unexpected table: ", st.GetTable())
	}

	st = NewSchemaTable("", "patient")
	if st.String() != "patient" {
		t.Fatal("unexpected String() without schema: ", st.String())
	}
	if st.GetSchema() != "" {
		t.Fatal("expected empty schema, got: ", st.GetSchema())
	}
	if st.GetTable() != "patient" {
		t.Fatal("unexpected table without schema: ", st.GetTable())
	}
}
