// Package tlmt defines anonymous usage telemetry. Events carry a stable
// machine hash, never user data.
package tlmt

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/host"
)

var (
	once       sync.Once
	identifier machineIdentifier
)

type Event struct {
	AnonymousID string
	Name        string
	Properties  map[string]any
}

func NewEvent(name string, props map[string]any) Event {
	machine := generateMachineID()

	ev := Event{
		AnonymousID: machine.id,
		Name:        name,
		Properties:  make(map[string]any, len(machine.meta)+len(props)),
	}

	for k, v := range machine.meta {
		ev.Properties[k] = v
	}

	for k, v := range props {
		ev.Properties[k] = v
	}

	return ev
}

type Telemetry interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

type machineIdentifier struct {
	id   string
	meta map[string]any
}

// generateMachineID hashes stable host attributes into an anonymous id.
// When no host id is available the id is random per process.
func generateMachineID() machineIdentifier {
	once.Do(func() {
		seed := ""

		if info, err := host.Info(); err == nil {
			seed = info.HostID
		}

		if seed == "" {
			if hostname, err := os.Hostname(); err == nil {
				seed = hostname
			}
		}

		if seed == "" {
			seed = uuid.New().String()
		}

		hash := sha256.New()
		hash.Write([]byte(seed))
		hash.Write([]byte(runtime.GOARCH))
		hash.Write([]byte(runtime.GOOS))
		hash.Write([]byte(runtime.Version()))

		meta := make(map[string]any)

		if info, err := host.Info(); err == nil {
			meta["os"] = info.OS
			meta["platform"] = info.Platform
			meta["platform_family"] = info.PlatformFamily
			meta["platform_version"] = info.PlatformVersion
		}

		identifier.id = fmt.Sprintf("%x", hash.Sum(nil))
		identifier.meta = meta
	})

	return identifier
}
