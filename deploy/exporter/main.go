// Command exporter publishes container metadata for the compose stack as
// Prometheus gauges so dashboards can join pipeline metrics with the
// service, image, and state of each container.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var containerInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "talentdb_container_info",
		Help: "Metadata for each container in the stack (value is always 1).",
	},
	[]string{"id", "name", "image", "service", "state"},
)

func init() {
	prometheus.MustRegister(containerInfo)
}

func collect(ctx context.Context) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		log.Printf("docker client: %v", err)
		return
	}
	defer cli.Close()

	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		log.Printf("container list: %v", err)
		return
	}

	containerInfo.Reset()
	for _, c := range containers {
		id := c.ID
		if len(id) > 12 {
			id = id[:12]
		}
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		service := c.Labels["com.docker.compose.service"]
		if service == "" {
			service = name
		}
		containerInfo.WithLabelValues(id, name, c.Image, service, c.State).Set(1)
	}
}

func main() {
	addr := os.Getenv("EXPORTER_ADDR")
	if addr == "" {
		addr = ":8000"
	}

	go func() {
		ctx := context.Background()
		for {
			collect(ctx)
			time.Sleep(15 * time.Second)
		}
	}()

	http.Handle("/metrics", promhttp.Handler())
	log.Printf("container exporter listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
