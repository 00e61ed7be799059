package partner

import (
	"context"
	"testing"

	"partner_bitrix/internal/bitrix"
)

func newTestDirectory(srvURL string) *Directory {
	return NewDirectory(bitrix.NewClient(srvURL), testConfig())
}

func TestFindByCode(t *testing.T) {
	t.Run("contact wins over company", func(t *testing.T) {
		crm := newFakeCRM(t)
		crm.on("crm.contact.list", func(map[string]any) string {
			return `{"result": [{"ID": "42"}], "total": 1}`
		})
		srv := crm.serve()
		defer srv.Close()

		dir := newTestDirectory(srv.URL)
		ref, err := dir.FindByCode(context.Background(), "PARTNER1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ref == nil || ref.Encode() != "C_42" {
			t.Fatalf("unexpected reference: %+v", ref)
		}
	})

	t.Run("falls through to company", func(t *testing.T) {
		crm := newFakeCRM(t)
		crm.on("crm.contact.list", func(map[string]any) string {
			return `{"result": [], "total": 0}`
		})
		crm.on("crm.company.list", func(map[string]any) string {
			return `{"result": [{"ID": "9"}], "total": 1}`
		})
		srv := crm.serve()
		defer srv.Close()

		dir := newTestDirectory(srv.URL)
		ref, err := dir.FindByCode(context.Background(), "PARTNER1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ref == nil || ref.Encode() != "CO_9" {
			t.Fatalf("unexpected reference: %+v", ref)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		crm := newFakeCRM(t)
		crm.on("crm.contact.list", func(map[string]any) string {
			return `{"result": [], "total": 0}`
		})
		crm.on("crm.company.list", func(map[string]any) string {
			return `{"result": [], "total": 0}`
		})
		srv := crm.serve()
		defer srv.Close()

		dir := newTestDirectory(srv.URL)
		ref, err := dir.FindByCode(context.Background(), "NOBODY")
		if err != nil || ref != nil {
			t.Fatalf("expected nil, nil; got %+v, %v", ref, err)
		}
	})

	t.Run("empty code", func(t *testing.T) {
		dir := newTestDirectory("http://unused.invalid")
		ref, err := dir.FindByCode(context.Background(), "   ")
		if err != nil || ref != nil {
			t.Fatalf("expected nil, nil; got %+v, %v", ref, err)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		dir := NewDirectory(bitrix.NewClient(""), testConfig())
		_, err := dir.FindByCode(context.Background(), "PARTNER1")
		if err != bitrix.ErrNotConfigured {
			t.Fatalf("expected ErrNotConfigured, got %v", err)
		}
	})
}

func TestFindByPhone(t *testing.T) {
	t.Run("matching partner contact", func(t *testing.T) {
		crm := newFakeCRM(t)
		crm.on("crm.contact.list", func(payload map[string]any) string {
			filter, _ := payload["filter"].(map[string]any)
			if filter["PHONE"] == "+79301234567" {
				return `{"result": [{
					"ID": "42", "TYPE_ID": "PARTNER",
					"UF_CONTACT_CODE": "PARTNER1", "UF_CONTACT_PERCENT": "12.5"
				}], "total": 1}`
			}
			return `{"result": [], "total": 0}`
		})
		crm.on("crm.company.list", func(map[string]any) string {
			return `{"result": [], "total": 0}`
		})
		srv := crm.serve()
		defer srv.Close()

		dir := newTestDirectory(srv.URL)
		found, err := dir.FindByPhone(context.Background(), "89301234567")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found == nil {
			t.Fatal("expected a partner")
		}
		if found.ID != 42 || found.Kind != KindContact || found.Code != "PARTNER1" {
			t.Fatalf("unexpected partner: %+v", found)
		}
		if found.Percent == nil || *found.Percent != 12.5 {
			t.Fatalf("unexpected percent: %v", found.Percent)
		}
	})

	t.Run("wrong type is skipped", func(t *testing.T) {
		crm := newFakeCRM(t)
		crm.on("crm.contact.list", func(map[string]any) string {
			return `{"result": [{"ID": "42", "TYPE_ID": "CLIENT", "UF_CONTACT_CODE": "PARTNER1"}], "total": 1}`
		})
		crm.on("crm.company.list", func(map[string]any) string {
			return `{"result": [], "total": 0}`
		})
		srv := crm.serve()
		defer srv.Close()

		dir := newTestDirectory(srv.URL)
		found, err := dir.FindByPhone(context.Background(), "89301234567")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found != nil {
			t.Fatalf("client contact must not match: %+v", found)
		}
	})

	t.Run("company fallback", func(t *testing.T) {
		crm := newFakeCRM(t)
		crm.on("crm.contact.list", func(map[string]any) string {
			return `{"result": [], "total": 0}`
		})
		crm.on("crm.company.list", func(payload map[string]any) string {
			filter, _ := payload["filter"].(map[string]any)
			if filter["PHONE"] == "+79301234567" {
				return `{"result": [{"ID": "9", "COMPANY_TYPE": "PARTNER", "UF_COMPANY_CODE": "ORG1"}], "total": 1}`
			}
			return `{"result": [], "total": 0}`
		})
		srv := crm.serve()
		defer srv.Close()

		dir := newTestDirectory(srv.URL)
		found, err := dir.FindByPhone(context.Background(), "89301234567")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found == nil || found.Kind != KindCompany || found.ID != 9 || found.Code != "ORG1" {
			t.Fatalf("unexpected partner: %+v", found)
		}
	})
}
