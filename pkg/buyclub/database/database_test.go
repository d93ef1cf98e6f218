package database

import "testing"

func TestOpenMigratesSchema(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for _, table := range []string{"users", "groups", "products", "shopping_list_items"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

func TestConnectSetsGlobal(t *testing.T) {
	if err := Connect(":memory:"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if GetDB() == nil {
		t.Error("Expected GetDB to return the connection")
	}
}
