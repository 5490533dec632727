package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gridcraft.ai/internal/sim/hub"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fatal("request", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func saveCmd(args []string) {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	sessionID := fs.String("session", "", "session id")
	_ = fs.Parse(args)

	if strings.TrimSpace(*sessionID) == "" {
		fmt.Fprintln(os.Stderr, "missing -session")
		os.Exit(2)
	}

	body, _ := json.Marshal(struct {
		SessionID string `json:"session_id"`
	}{strings.TrimSpace(*sessionID)})

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/save"
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		fatal("request", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	sessionID := fs.String("session", "", "render a live session instead of a fresh world")
	seed := fs.Uint64("seed", 0, "world seed for a fresh snapshot (0 = server entropy)")
	actions := fs.String("actions", "", "comma separated actions to apply before rendering")
	view := fs.Int("view", 0, "view size override (odd, e.g. 9)")
	_ = fs.Parse(args)

	req := hub.SnapshotRequest{SessionID: strings.TrimSpace(*sessionID)}
	if *seed != 0 {
		req.Seed = seed
	}
	if s := strings.TrimSpace(*actions); s != "" {
		for _, a := range strings.Split(s, ",") {
			if a = strings.TrimSpace(a); a != "" {
				req.Actions = append(req.Actions, a)
			}
		}
	}
	if *view > 0 {
		req.ViewSize = view
	}
	body, _ := json.Marshal(req)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/snapshot"
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		fatal("request", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
