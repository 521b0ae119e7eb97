// Command shmeventsctl is a small debug tool for inspecting a node's
// service registry: list every known service, or check whether one
// particular name exists.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/vansweej/iceoryx2/config"
	"github.com/vansweej/iceoryx2/service"
)

func main() {
	name := flag.String("name", "", "service name to check with -exists")
	checkExists := flag.Bool("exists", false, "report whether -name exists instead of listing everything")
	pattern := flag.String("pattern", "event", "messaging pattern to check -exists against (event, publish-subscribe, request-response)")
	configPath := flag.String("config", "", "optional config file to load instead of the process default")
	flag.Parse()

	cfg := config.Global()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("shmeventsctl: load config: %v", err)
		}
		cfg = loaded
	}

	if *checkExists {
		if *name == "" {
			log.Fatal("shmeventsctl: -exists requires -name")
		}
		p, err := parsePattern(*pattern)
		if err != nil {
			log.Fatalf("shmeventsctl: %v", err)
		}
		exists, err := service.DoesExist(cfg, service.Name(*name), p)
		if err != nil {
			log.Fatalf("shmeventsctl: does-exist %q: %v", *name, err)
		}
		fmt.Printf("%q exists under pattern %s: %t\n", *name, p, exists)
		return
	}

	fmt.Printf("services under %s:\n", cfg.ServicesDir())
	count := 0
	err := service.List(cfg, func(d service.Descriptor) bool {
		count++
		fmt.Printf("  %-10s %-30s pattern=%-16s marker=%s\n", d.ID.String()[:10], d.Name, d.Pattern, markerString(d.Marker))
		return true
	})
	if err != nil {
		log.Fatalf("shmeventsctl: list: %v", err)
	}
	if count == 0 {
		fmt.Println("  (none)")
	}
}

func parsePattern(s string) (service.MessagingPattern, error) {
	switch s {
	case "event":
		return service.Event, nil
	case "publish-subscribe":
		return service.PublishSubscribe, nil
	case "request-response":
		return service.RequestResponse, nil
	default:
		return 0, fmt.Errorf("unknown -pattern %q (want event, publish-subscribe, or request-response)", s)
	}
}

func markerString(m service.Marker) string {
	switch m {
	case service.MarkerReady:
		return "ready"
	case service.MarkerMarkedForDestruction:
		return "marked-for-destruction"
	case service.MarkerCreating:
		return "creating"
	default:
		return "uninitialized"
	}
}
