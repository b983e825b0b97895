package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iliyamo/table-reservation/internal/utils"
)

func TestTokenCommandPrintsValidAccessToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--diner", "12", "--ttl", "5"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	id, err := utils.ParseAccessToken("cli-secret", strings.TrimSpace(out.String()))
	if err != nil || id != 12 {
		t.Fatalf("token: id=%d err=%v", id, err)
	}
}

func TestTokenCommandRequiresDiner(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected an error without --diner")
	}
}
