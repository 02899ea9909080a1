// Package nmap cleans up raw nmap text output pasted by the operator.
package nmap

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"reconbook/api/internal/store"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// Normalize returns raw as a valid UTF-8 string. Input that is already UTF-8
// is returned untouched; anything else is decoded from its detected charset,
// falling back to Windows-1252.
func Normalize(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if decoded, ok := decodeDetected(raw); ok {
		return decoded
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "�")
	}
	return strings.ToValidUTF8(string(decoded), "�")
}

func decodeDetected(raw []byte) (string, bool) {
	result, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil || result == nil || !asciiCompatible(result.Charset) {
		return "", false
	}
	enc, err := htmlindex.Get(result.Charset)
	if err != nil {
		return "", false
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	// a lossy decode means the detection was wrong
	if err != nil || !utf8.Valid(decoded) || bytes.ContainsRune(decoded, utf8.RuneError) {
		return "", false
	}
	return string(decoded), true
}

// asciiCompatible rejects detections that would reinterpret the ASCII part of
// the output; nmap itself only ever writes ASCII.
func asciiCompatible(charset string) bool {
	upper := strings.ToUpper(charset)
	switch {
	case upper == "UTF-8":
		return false
	case strings.HasPrefix(upper, "IBM"), strings.HasPrefix(upper, "UTF-16"), strings.HasPrefix(upper, "UTF-32"):
		return false
	}
	return true
}

var portLine = regexp.MustCompile(`^(\d{1,5})/(tcp|udp|sctp)\s+(open\|filtered|closed\|filtered|open|closed|filtered|unfiltered)(?:\s+(\S+))?(?:\s+(.*))?$`)

// ParsePorts extracts the rows of nmap's port table, such as
// "22/tcp open ssh OpenSSH 8.2p1 Ubuntu". The first row per port/protocol wins.
func ParsePorts(results string) []store.NmapPort {
	ports := []store.NmapPort{}
	seen := map[string]bool{}

	scanner := bufio.NewScanner(strings.NewReader(results))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		match := portLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if match == nil {
			continue
		}
		number, err := strconv.Atoi(match[1])
		if err != nil || number < 1 || number > 65535 {
			continue
		}
		key := match[1] + "/" + match[2]
		if seen[key] {
			continue
		}
		seen[key] = true
		ports = append(ports, store.NmapPort{
			Port:     number,
			Protocol: match[2],
			State:    match[3],
			Service:  match[4],
			Version:  strings.TrimSpace(match[5]),
		})
	}
	return ports
}

var (
	initiatedLine = regexp.MustCompile(`^# Nmap \S+ scan initiated .*? as: (.+)$`)
	reportLine    = regexp.MustCompile(`^Nmap scan report for (.+)$`)
)

// Header holds what can be recovered from an -oN style output file.
type Header struct {
	Command string
	Target  string
}

// ParseHeader reads the invocation line written by -oN and the first
// "scan report" line. Missing parts are left empty.
func ParseHeader(results string) Header {
	var header Header
	scanner := bufio.NewScanner(strings.NewReader(results))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() && (header.Command == "" || header.Target == "") {
		line := strings.TrimSpace(scanner.Text())
		if header.Command == "" {
			if match := initiatedLine.FindStringSubmatch(line); match != nil {
				header.Command = strings.TrimSpace(match[1])
				continue
			}
		}
		if header.Target == "" {
			if match := reportLine.FindStringSubmatch(line); match != nil {
				header.Target = reportTarget(match[1])
			}
		}
	}
	return header
}

// reportTarget turns "host.example (10.0.0.5)" into "host.example".
func reportTarget(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.Index(value, " ("); i > 0 {
		return value[:i]
	}
	return value
}
