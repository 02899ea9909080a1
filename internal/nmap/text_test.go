package nmap

import (
	"strings"
	"testing"
	"unicode/utf8"

	"reconbook/api/internal/store"

	"github.com/google/go-cmp/cmp"
)

const sampleOutput = `Starting Nmap 7.94 ( https://nmap.org ) at 2026-10-01 10:00 UTC
Nmap scan report for 10.0.0.5
Host is up (0.00042s latency).
Not shown: 996 closed tcp ports (reset)
PORT     STATE         SERVICE  VERSION
22/tcp   open          ssh      OpenSSH 8.2p1 Ubuntu 4ubuntu0.5 (Ubuntu Linux; protocol 2.0)
80/tcp   open          http     Apache httpd 2.4.41 ((Ubuntu))
443/tcp  filtered      https
161/udp  open|filtered snmp
22/tcp   open          ssh      duplicate row
70000/tcp open         bogus
Service detection performed.
`

func TestParsePorts(t *testing.T) {
	got := ParsePorts(sampleOutput)
	want := []store.NmapPort{
		{Port: 22, Protocol: "tcp", State: "open", Service: "ssh", Version: "OpenSSH 8.2p1 Ubuntu 4ubuntu0.5 (Ubuntu Linux; protocol 2.0)"},
		{Port: 80, Protocol: "tcp", State: "open", Service: "http", Version: "Apache httpd 2.4.41 ((Ubuntu))"},
		{Port: 443, Protocol: "tcp", State: "filtered", Service: "https"},
		{Port: 161, Protocol: "udp", State: "open|filtered", Service: "snmp"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ports mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePortsEmpty(t *testing.T) {
	got := ParsePorts("no table here")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestNormalizeKeepsUTF8(t *testing.T) {
	in := "Nmap scan report for café.example\n"
	if got := Normalize([]byte(in)); got != in {
		t.Fatalf("Normalize() = %q, want %q", got, in)
	}
}

func TestNormalizeDecodesLegacyBytes(t *testing.T) {
	// "Nmap scan report for caf\xe9.example" in Latin-1
	raw := []byte("Nmap scan report for caf\xe9.example\nPORT STATE SERVICE\n22/tcp open ssh\n")
	got := Normalize(raw)
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid UTF-8, got %q", got)
	}
	if !strings.Contains(got, "22/tcp open ssh") {
		t.Fatalf("ASCII content lost: %q", got)
	}
	if strings.ContainsRune(got, utf8.RuneError) {
		t.Fatalf("unexpected replacement rune in %q", got)
	}
}

func TestParseHeader(t *testing.T) {
	out := "# Nmap 7.94 scan initiated Wed Oct  1 10:00:00 2026 as: nmap -sV -oN scan.txt intranet.example\n" +
		"Nmap scan report for intranet.example (10.0.0.8)\n" +
		"Nmap scan report for other.example (10.0.0.9)\n"
	got := ParseHeader(out)
	want := Header{Command: "nmap -sV -oN scan.txt intranet.example", Target: "intranet.example"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestParseHeaderBareTarget(t *testing.T) {
	got := ParseHeader(sampleOutput)
	if got.Command != "" || got.Target != "10.0.0.5" {
		t.Fatalf("unexpected header %+v", got)
	}
}
