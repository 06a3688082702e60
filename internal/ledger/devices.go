package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/relabel/relabel/internal/db"
)

// Device is one client machine observed reporting under an access code,
// identified by its hostname plus MAC set. A machine that changes its IP or
// client version keeps one entry; the newest sighting wins.
type Device struct {
	Host          string
	MACList       []string
	IPList        []string
	LastSeen      time.Time
	ClientVersion string
}

// Devices derives the machines seen for an access code from its ledger
// events, newest first, one entry per distinct (host, mac_list) pair.
func (s *Service) Devices(codeID int64) ([]Device, error) {
	events, err := db.ListEventsByAccessCode(s.db, codeID)
	if err != nil {
		return nil, fmt.Errorf("list events for code: %w", err)
	}

	seen := make(map[string]bool)
	devices := []Device{}
	for _, e := range events {
		key := e.Host + "\x00" + strings.Join(e.MACList, ",")
		if seen[key] {
			continue
		}
		seen[key] = true
		devices = append(devices, Device{
			Host:          e.Host,
			MACList:       e.MACList,
			IPList:        e.IPList,
			LastSeen:      e.CreatedAt,
			ClientVersion: e.ClientVersion,
		})
	}
	return devices, nil
}
