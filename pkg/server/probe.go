package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// PortInUseError reports a configured port already bound by another process.
// The proxy never silently picks a different port.
type PortInUseError struct {
	Addr     string
	Occupant string
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("port %s is already in use by %s", e.Addr, e.Occupant)
}

// ProbePort checks whether the address is free before binding. When it is
// occupied, /healthz identifies whether the occupant is an earlier instance
// of this proxy or an unrelated process.
func ProbePort(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return nil
	}
	conn.Close()

	occupant := "another process"
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err == nil {
		defer resp.Body.Close()
		var body HealthBody
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Service == "claudeproxy" {
			occupant = fmt.Sprintf("an earlier claudeproxy instance (adapter %s)", body.Adapter)
		}
	}

	return &PortInUseError{Addr: addr, Occupant: occupant}
}
