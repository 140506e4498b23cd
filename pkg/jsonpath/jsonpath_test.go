package jsonpath

import (
	"strings"
	"testing"
)

const order = `{
	"id": "ord_1",
	"customer": {"name": "Ada", "token": "tok_abc"},
	"items": [
		{"sku": "A1", "qty": 2},
		{"sku": "B7", "qty": 1}
	],
	"paid": true,
	"total": 42.5,
	"coupon": null
}`

func TestToGjson(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"$", "@this"},
		{"$.id", "id"},
		{"$.customer.name", "customer.name"},
		{"$.items[1].sku", "items.1.sku"},
		{"$[0]", "0"},
		{"$['customer']['token']", "customer.token"},
		{`$["customer"].name`, "customer.name"},
		{"customer.name", "customer.name"},
		{"items.#.sku", "items.#.sku"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ToGjson(tt.path); got != tt.expected {
				t.Errorf("ToGjson(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
		found    bool
	}{
		{"string", "$.id", "ord_1", true},
		{"nested", "$.customer.token", "tok_abc", true},
		{"array element", "$.items[0].qty", "2", true},
		{"boolean", "$.paid", "true", true},
		{"float", "$.total", "42.5", true},
		{"null", "$.coupon", "null", true},
		{"object keeps raw json", "$.items[1]", `{"sku": "B7", "qty": 1}`, true},
		{"gjson query", "items.#.sku", `["A1","B7"]`, true},
		{"missing", "$.customer.email", "", false},
		{"out of range", "$.items[5]", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := Lookup([]byte(order), tt.path)
			if found != tt.found || got != tt.expected {
				t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.path, got, found, tt.expected, tt.found)
			}
		})
	}
}

func TestLookup_InvalidInput(t *testing.T) {
	if _, ok := Lookup(nil, "$.id"); ok {
		t.Error("nil document should not resolve")
	}
	if _, ok := Lookup([]byte(order), ""); ok {
		t.Error("empty path should not resolve")
	}
	if _, ok := Lookup([]byte("plain text"), "$.id"); ok {
		t.Error("non-JSON document should not resolve")
	}
}

func TestExtract(t *testing.T) {
	got, err := Extract(order, "$.customer.name")
	if err != nil || got != "Ada" {
		t.Errorf("Extract() = %q, %v", got, err)
	}

	if _, err := Extract("", "$.id"); err == nil {
		t.Error("expected error for empty JSON")
	}
	if _, err := Extract(order, ""); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := Extract(order, "$.nope"); err == nil || !strings.Contains(err.Error(), "path not found") {
		t.Errorf("expected path not found, got %v", err)
	}
}

func TestExtractMultiple(t *testing.T) {
	results, err := ExtractMultiple(order, map[string]string{
		"orderId": "$.id",
		"sku":     "$.items[0].sku",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results["orderId"] != "ord_1" || results["sku"] != "A1" {
		t.Errorf("unexpected results: %v", results)
	}

	results, err = ExtractMultiple(order, map[string]string{
		"id":      "$.id",
		"missing": "$.missing",
		"also":    "$.also.missing",
	})
	if err == nil {
		t.Fatal("expected an error for missing paths")
	}
	if results["id"] != "ord_1" {
		t.Error("resolved values should still be returned")
	}
	if !strings.Contains(err.Error(), "also: ") || strings.Index(err.Error(), "also") > strings.Index(err.Error(), "missing: ") {
		t.Errorf("failures should be listed in name order: %v", err)
	}

	if _, err := ExtractMultiple(order, nil); err == nil {
		t.Error("expected error for no paths")
	}
}
