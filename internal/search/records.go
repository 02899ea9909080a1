package search

import (
	"fmt"
	"strings"

	"reconbook/api/internal/store"
)

func ScanRecordFrom(scan store.NmapScan) ScanRecord {
	ports := make([]string, 0, len(scan.Ports))
	for _, port := range scan.Ports {
		entry := fmt.Sprintf("%d/%s", port.Port, port.Protocol)
		if port.Service != "" {
			entry += " " + port.Service
		}
		ports = append(ports, entry)
	}
	return ScanRecord{
		ID:       scan.ID,
		Target:   scan.Target,
		Command:  scan.Command,
		ScanType: scan.ScanType,
		Ports:    strings.Join(ports, ", "),
		Notes:    scan.Notes,
	}
}

func CredentialRecordFrom(credential store.Credential) CredentialRecord {
	return CredentialRecord{
		ID:       credential.ID,
		Host:     credential.Host,
		Service:  credential.Service,
		Username: credential.Username,
		Notes:    credential.Notes,
	}
}
