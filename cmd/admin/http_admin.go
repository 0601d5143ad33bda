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

	"github.com/JLsquare/voxplace/internal/protocol"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8000", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/api/place/infos"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func onlineCmd(args []string) {
	fs := flag.NewFlagSet("online", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8000", "server base url")
	placeID := fs.String("place", "", "place id (required)")
	online := fs.Bool("online", true, "target state")
	token := fs.String("token", "", "admin bearer token (or set VOXPLACE_ADMIN_TOKEN)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*placeID) == "" {
		fmt.Fprintln(os.Stderr, "missing -place")
		os.Exit(2)
	}
	tok := strings.TrimSpace(*token)
	if tok == "" {
		tok = strings.TrimSpace(os.Getenv("VOXPLACE_ADMIN_TOKEN"))
	}
	body, _ := json.Marshal(protocol.OnlineRequest{ID: strings.TrimSpace(*placeID), Online: *online})

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/api/place/online"
	req, _ := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
