// Command rdtdemo wires two RDT engines together over an in-process
// loopback link and drives pairing, a parameter exchange and a file
// transfer between them, the way ventosilenzioso-go-raknet's
// core/main.go boots a server and wires its gamemode.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	flag "github.com/spf13/pflag"

	"github.com/pavelkvkv/go-wireless-rdt/config"
	"github.com/pavelkvkv/go-wireless-rdt/engine"
	"github.com/pavelkvkv/go-wireless-rdt/files"
	"github.com/pavelkvkv/go-wireless-rdt/internal/dispatch"
	"github.com/pavelkvkv/go-wireless-rdt/internal/linkstats"
	"github.com/pavelkvkv/go-wireless-rdt/internal/rdtlog"
	"github.com/pavelkvkv/go-wireless-rdt/pairing"
	"github.com/pavelkvkv/go-wireless-rdt/params"
	"github.com/pavelkvkv/go-wireless-rdt/ports"
)

const version = "0.1.0"

func main() {
	configPath := flag.StringP("config", "c", "", "path to a YAML channel/PHY config")
	metricsAddr := flag.StringP("metrics-addr", "m", "", "override the metrics listen address")
	listenOnly := flag.BoolP("listen-only", "l", false, "start the peer side only, wait for pairing")
	flag.Parse()

	log := rdtlog.New("rdtdemo")
	log.Info("go-wireless-rdt demo %s", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config: %v", err)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Listen = *metricsAddr
		cfg.Metrics.Enabled = true
	}
	if cfg.EngineID == "" || cfg.EngineID == "rdt-engine" {
		cfg.EngineID = "rdt-" + xid.New().String()
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		stats := linkstats.New(cfg.EngineID)
		reg.MustRegister(stats)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Info("metrics listening on %s", cfg.Metrics.Listen)
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				log.Error("metrics server: %v", err)
			}
		}()
	}

	localMAC := ports.MAC{0xAA, 0xBB, 0xCC, 0x00, 0x00, 0x01}
	peerMAC := ports.MAC{0xAA, 0xBB, 0xCC, 0x00, 0x00, 0x02}

	radioA := newLoopbackRadio(localMAC)
	radioB := newLoopbackRadio(peerMAC)
	link(radioA, radioB)

	engA := buildEngine("A-"+cfg.EngineID, radioA, cfg)
	engB := buildEngine("B-"+cfg.EngineID, radioB, cfg)

	radioA.onReceive = engA.OnReceive
	radioB.onReceive = engB.OnReceive

	go engA.Run()
	go engB.Run()
	defer engA.Stop()
	defer engB.Stop()

	storeA := &memPersistence{}
	storeB := &memPersistence{}

	pairA := pairing.New(engA, storeA, localMAC, rdtlog.New("pairA"))
	pairB := pairing.New(engB, storeB, peerMAC, rdtlog.New("pairB"))

	ctx, cancel := context.WithTimeout(context.Background(), pairing.Timeout)
	defer cancel()
	pairB.Begin(ctx)
	if !*listenOnly {
		pairA.Begin(ctx)
	}

	time.Sleep(500 * time.Millisecond)
	log.Info("engine A pairing status: %v", pairA.Status())
	log.Info("engine B pairing status: %v", pairB.Status())

	runParamsDemo(engA, engB, log)
	runFilesDemo(engA, engB, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
}

func buildEngine(id string, radio ports.Radio, cfg config.Config) *engine.Engine {
	stats := linkstats.New(id)
	disp := dispatch.New()
	log := rdtlog.New(id)
	if cfg.PMK != "" {
		if err := radio.SetPMK([]byte(cfg.PMK)); err != nil {
			log.Error("radio.SetPMK: %v", err)
		}
	}
	eng := engine.New(id, radio, stats, disp, log, nil)
	eng.InitChannels(cfg.ChannelConfigs())
	return eng
}

func runParamsDemo(engA, engB *engine.Engine, log *rdtlog.Logger) {
	const msgType uint8 = 7
	value := []byte("50")

	registry := params.NewRegistry([]params.Descriptor{
		{
			MessageType: msgType,
			Read: func(maxLength int) ([]byte, error) {
				return value, nil
			},
			Write: func(v []byte) error {
				value = append([]byte(nil), v...)
				return nil
			},
		},
	})
	params.NewServer(engB, registry, rdtlog.New("paramsB"))
	client := params.NewClient(engA, rdtlog.New("paramsA"))

	rc, err := client.Set(msgType, []byte("77"))
	log.Info("params set rc=%d err=%v", rc, err)

	buf := make([]byte, 64)
	n, rc, err := client.Get(msgType, buf)
	log.Info("params get rc=%d err=%v value=%q", rc, err, buf[:n])
}

func runFilesDemo(engA, engB *engine.Engine, log *rdtlog.Logger) {
	fs := newMemFS()
	files.NewServer(engB, fs, rdtlog.New("filesB"))
	client := files.NewClient(engA, rdtlog.New("filesA"))

	res, err := client.Write("/cfg/demo.bin", files.AppendOffset, []byte("hello rdt"))
	log.Info("files write rc=%d err=%v", res.ReturnCode, err)

	res, err = client.Read("/cfg/demo.bin", 0, 32)
	log.Info("files read rc=%d err=%v data=%q", res.ReturnCode, err, res.Data)

	res, err = client.List("/cfg")
	log.Info("files list rc=%d err=%v data=%q", res.ReturnCode, err, res.Data)
}
