package auth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/desertthunder/recents/internal/shared"
	"golang.org/x/oauth2"
)

// record is the opaque token document. Fields the manager does not own are carried through writes.
type record map[string]json.RawMessage

func decodeRecord(data []byte) (record, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r == nil {
		r = record{}
	}
	return r, nil
}

func (r record) str(key string) string {
	raw, ok := r[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func (r record) set(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	r[key] = data
}

// token builds an [oauth2.Token] from the record. Expiry comes from "expiry" (RFC 3339) and
// falls back to "expires_at" (unix seconds).
func (r record) token() (*oauth2.Token, error) {
	tok := &oauth2.Token{
		AccessToken:  r.str("access_token"),
		TokenType:    r.str("token_type"),
		RefreshToken: r.str("refresh_token"),
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token record has no refresh token", shared.ErrAuthorizationRequired)
	}

	if s := r.str("expiry"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed expiry %q", shared.ErrAuthorizationRequired, s)
		}
		tok.Expiry = t
	} else if raw, ok := r["expires_at"]; ok {
		secs, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed expires_at %s", shared.ErrAuthorizationRequired, raw)
		}
		tok.Expiry = time.Unix(int64(secs), 0)
	}

	if scope := r.str("scope"); scope != "" {
		tok = tok.WithExtra(map[string]any{"scope": scope})
	}
	return tok, nil
}

// merge writes the fields owned by the manager into the record.
func (r record) merge(tok *oauth2.Token) {
	r.set("access_token", tok.AccessToken)
	r.set("token_type", tok.Type())
	r.set("refresh_token", tok.RefreshToken)
	if !tok.Expiry.IsZero() {
		r.set("expiry", tok.Expiry.UTC().Format(time.RFC3339))
		r.set("expires_at", tok.Expiry.Unix())
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		r.set("scope", scope)
	}
}
