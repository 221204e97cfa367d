package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"toolcatalog/internal/model"
)

func TestPostgresStoreCRUD(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	s := NewPostgresStore(conn)

	customer, err := s.Customers().Insert(ctx, model.Customer{Name: "Acme"})
	if err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	if customer.ID == 0 {
		t.Fatal("expected generated id")
	}
	app, err := s.Applications().Insert(ctx, model.Application{CustomerID: customer.ID, Name: "Billing"})
	if err != nil {
		t.Fatalf("insert application: %v", err)
	}
	tool, err := s.Tools().Insert(ctx, model.Tool{ApplicationID: app.ID, Name: "Invoice", APIEndpoint: "https://tools.example.com/invoice"})
	if err != nil {
		t.Fatalf("insert tool: %v", err)
	}
	input, err := s.ToolInputs().Insert(ctx, model.ToolInput{ToolID: tool.ID, Name: "plan", FieldType: model.InputSelect})
	if err != nil {
		t.Fatalf("insert input: %v", err)
	}
	if input.FieldType != model.InputSelect {
		t.Fatalf("field type round trip: %v", input.FieldType)
	}
	if _, err := s.InputOptions().Insert(ctx, model.InputOption{InputID: input.ID, Label: "Pro", Value: "pro"}); err != nil {
		t.Fatalf("insert option: %v", err)
	}
	output, err := s.ToolOutputs().Insert(ctx, model.ToolOutput{ToolID: tool.ID, Name: "total", Value: json.RawMessage(`{"amount":3}`)})
	if err != nil {
		t.Fatalf("insert output: %v", err)
	}
	if string(output.Value) == "" {
		t.Fatal("expected output value to round trip")
	}

	tool.Name = "Invoices"
	updated, err := s.Tools().Update(ctx, tool)
	if err != nil {
		t.Fatalf("update tool: %v", err)
	}
	if updated.Name != "Invoices" || updated.ApplicationID != app.ID {
		t.Fatalf("unexpected update %+v", updated)
	}

	tools, err := s.Tools().ListByParent(ctx, app.ID)
	if err != nil || len(tools) != 1 {
		t.Fatalf("list tools by parent: %v %+v", err, tools)
	}

	if err := s.Customers().Delete(ctx, customer.ID); err != nil {
		t.Fatalf("delete customer: %v", err)
	}
	options, err := s.InputOptions().List(ctx)
	if err != nil || len(options) != 0 {
		t.Fatalf("expected the delete to cascade, got %v %+v", err, options)
	}
	if _, err := s.Tools().Get(ctx, tool.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	if err := s.Tools().Delete(ctx, tool.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows on second delete, got %v", err)
	}
}

func TestPostgresStoreConflicts(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	s := NewPostgresStore(conn)

	customer, err := s.Customers().Insert(ctx, model.Customer{Name: "Acme"})
	if err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	if _, err := s.Customers().Insert(ctx, model.Customer{Name: " acme "}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected name conflict, got %v", err)
	}
	if _, err := s.Applications().Insert(ctx, model.Application{CustomerID: customer.ID + 100, Name: "x"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected foreign key conflict, got %v", err)
	}

	for _, name := range []string{"a", "b"} {
		if _, err := s.Applications().Insert(ctx, model.Application{CustomerID: customer.ID, Name: name}); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}
	ids, err := s.Applications().DeleteByParent(ctx, customer.ID)
	if err != nil || len(ids) != 2 {
		t.Fatalf("delete by parent: %v %v", err, ids)
	}
	if _, err := s.Customers().DeleteByParent(ctx, 1); err == nil {
		t.Fatal("expected error deleting customers by parent")
	}
}
