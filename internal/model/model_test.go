package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestField_UnmarshalJSON(t *testing.T) {
	type payload struct {
		Name  Field[string] `json:"name"`
		Email Field[string] `json:"email"`
	}

	tests := []struct {
		name      string
		body      string
		wantSet   bool
		wantNull  bool
		wantValue string
	}{
		{"absent", `{"name":"Acme"}`, false, false, ""},
		{"explicit null", `{"email":null}`, true, true, ""},
		{"empty string", `{"email":""}`, true, false, ""},
		{"value", `{"email":"billing@acme.test"}`, true, false, "billing@acme.test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			if err := json.Unmarshal([]byte(tt.body), &p); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if p.Email.Set != tt.wantSet || p.Email.Null != tt.wantNull || p.Email.Value != tt.wantValue {
				t.Errorf("Email = %+v", p.Email)
			}
		})
	}
}

func TestField_WrongType(t *testing.T) {
	var f Field[string]
	if err := json.Unmarshal([]byte(`42`), &f); err == nil {
		t.Error("expected type error")
	}
}

func TestField_Ptr(t *testing.T) {
	if Null[string]().Ptr() != nil {
		t.Error("null field should have nil Ptr")
	}
	if (Field[string]{}).Ptr() != nil {
		t.Error("absent field should have nil Ptr")
	}
	if p := Some("x").Ptr(); p == nil || *p != "x" {
		t.Errorf("Some(x).Ptr() = %v", p)
	}
}

func TestCachedBusiness_RoundTrip(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	updated := created.Add(time.Hour)
	email := "billing@acme.test"
	empty := ""

	original := &Business{
		ID:        "3f1c2c4e-0000-4000-8000-000000000001",
		UserID:    "3f1c2c4e-0000-4000-8000-000000000002",
		Name:      "Acme",
		Email:     &email,
		Phone:     &empty,
		CreatedAt: created,
		UpdatedAt: &updated,
	}
	original.WithInvoiceCount(3)

	cached := original.ToCachedBusiness()
	if cached.NullMask != "101000" {
		t.Errorf("NullMask = %q, want 101000", cached.NullMask)
	}

	got := cached.ToBusiness()
	if got.Email == nil || *got.Email != email {
		t.Errorf("Email = %v", got.Email)
	}
	if got.Phone == nil || *got.Phone != "" {
		t.Errorf("Phone = %v, want empty non-nil", got.Phone)
	}
	if got.Address != nil || got.TaxID != nil {
		t.Error("unset columns must stay nil")
	}
	if !got.CreatedAt.Equal(created) || got.UpdatedAt == nil || !got.UpdatedAt.Equal(updated) {
		t.Errorf("timestamps = %v, %v", got.CreatedAt, got.UpdatedAt)
	}
	if got.InvoiceCount != nil {
		t.Error("invoice count must not be cached")
	}
}

func TestCachedBusiness_NilUpdatedAt(t *testing.T) {
	b := &Business{ID: "a", UserID: "b", Name: "c", CreatedAt: time.Now().UTC()}
	if got := b.ToCachedBusiness().ToBusiness(); got.UpdatedAt != nil {
		t.Errorf("UpdatedAt = %v, want nil", got.UpdatedAt)
	}
}

func TestUser_HasExternalID(t *testing.T) {
	id := "idp_123"
	u := &User{ExternalID: &id}
	if !u.HasExternalID("idp_123") || u.HasExternalID("idp_456") {
		t.Error("HasExternalID mismatch")
	}
	if (&User{}).HasExternalID("") {
		t.Error("unlinked user must not match empty id")
	}
}
