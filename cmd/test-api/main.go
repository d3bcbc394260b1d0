// Package main is a post-deployment smoke test. It obtains a credential through the
// OAuth2 password grant, registers a webhook pointing at HOOKRELAY_SMOKE_TARGET,
// calls it once, and prints the captured response and the newest log entry.
//
// Environment:
//
//	HOOKRELAY_URL          base URL of the server (default http://localhost:8080)
//	HOOKRELAY_USERNAME     account to use, registered on the fly if missing
//	HOOKRELAY_PASSWORD
//	HOOKRELAY_SMOKE_TARGET callback URL (default https://example.com/)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	baseURL := strings.TrimRight(getenv("HOOKRELAY_URL", "http://localhost:8080"), "/")
	username := getenv("HOOKRELAY_USERNAME", "smoke")
	password := getenv("HOOKRELAY_PASSWORD", "smoke-test-password")
	target := getenv("HOOKRELAY_SMOKE_TARGET", "https://example.com/")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// A 400 here means the account already exists
	register, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(baseURL+"/auth/register", "application/json", strings.NewReader(string(register)))
	if err != nil {
		log.Fatalf("register: %v", err)
	}
	resp.Body.Close()
	fmt.Printf("register: %d\n", resp.StatusCode)

	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  baseURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{"*"},
	}
	tok, err := conf.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	fmt.Printf("token: type=%s scope=%v expires=%v\n", tok.TokenType, tok.Extra("scope"), tok.Expiry)

	client := conf.Client(ctx, tok)

	var hook struct {
		ID string `json:"id"`
	}
	create, _ := json.Marshal(map[string]string{"method": "GET", "url": target})
	if err := call(client, http.MethodPost, baseURL+"/webhook", string(create), &hook); err != nil {
		log.Fatalf("create webhook: %v", err)
	}
	fmt.Printf("webhook: %s\n", hook.ID)

	var result json.RawMessage
	if err := call(client, http.MethodGet, baseURL+"/webhook/"+hook.ID+"/call", "", &result); err != nil {
		log.Fatalf("call webhook: %v", err)
	}
	fmt.Printf("call: %s\n", result)

	var logs json.RawMessage
	if err := call(client, http.MethodGet, baseURL+"/webhook/"+hook.ID+"/logs?limit=1", "", &logs); err != nil {
		log.Fatalf("list logs: %v", err)
	}
	fmt.Printf("logs: %s\n", logs)

	if err := call(client, http.MethodDelete, baseURL+"/webhook/"+hook.ID, "", nil); err != nil {
		log.Fatalf("delete webhook: %v", err)
	}
	fmt.Println("cleanup: ok")
}

func call(client *http.Client, method, url, body string, out interface{}) error {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
