// Command service is the tiled-detection pipeline's entrypoint. It discovers
// images the way g/cmd/service/main.go's findImages does, feeds them through
// the pipeline, and writes one formatted egress record per image.
//
// Grounded on g/cmd/service/main.go: flag.* configuration, a Redis ping at
// startup when a remote detector is requested, os/signal-driven shutdown, and
// a single sync.WaitGroup joining every long-running goroutine.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"tiledetect/pkg/config"
	"tiledetect/pkg/detector"
	"tiledetect/pkg/geometry"
	"tiledetect/pkg/imagejob"
	"tiledetect/pkg/pipeline"
	"tiledetect/pkg/pipestats"
	"tiledetect/pkg/queue"
	"tiledetect/pkg/queue/memq"
	"tiledetect/pkg/queue/redisq"
)

func main() {
	cfg := config.Default()
	config.RegisterFlags(flag.CommandLine, &cfg)

	var (
		inputDir    = flag.String("input", "/data/input", "Directory of images to run through the pipeline")
		outputDir   = flag.String("output", "/data/output", "Directory to write formatted per-image results")
		redisAddr   = flag.String("redis", "", "Redis address for the detector-adapter process boundary; empty uses the in-process stub detector")
		ingressSize = flag.Int("ingress-buffer", 8, "Ingress queue capacity")
	)
	flag.Parse()

	log.Printf("Starting tiled-detection service")
	log.Printf("Input: %s, Output: %s, Preprocessors: %d, Tile-NMS workers: %d", *inputDir, *outputDir, cfg.NumPreprocessors, cfg.NumTileNMS)

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	imagePaths := findImages(*inputDir)
	if len(imagePaths) == 0 {
		log.Fatalf("No images found in %s", *inputDir)
	}
	log.Printf("Found %d images to process", len(imagePaths))

	ingress := memq.New[imagejob.ImageJob](*ingressSize)
	egressQ := memq.New[imagejob.EgressRecord](cfg.CacheSize)
	logQ := memq.New[imagejob.LogRecord](cfg.CacheSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down on signal...")
		cancel()
	}()

	p := pipeline.New(cfg, ingress, egressQ, logQ, detector.NewStub(), geometry.DefaultIoU)

	if *redisAddr != "" {
		if err := attachRemoteDetector(ctx, p, *redisAddr); err != nil {
			log.Fatalf("Failed to attach Redis detector adapter: %v", err)
		}
	}

	startTime := time.Now()
	reporter := pipestats.New(logQ, startTime)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if err := p.Run(ctx); err != nil {
			log.Printf("Pipeline stopped with error: %v", err)
		}
	}()

	go func() {
		defer wg.Done()
		if err := reporter.Run(ctx); err != nil {
			log.Printf("Reporter stopped with error: %v", err)
		}
	}()

	go func() {
		defer wg.Done()
		writeEgress(ctx, egressQ, *outputDir)
	}()

	feedIngress(ctx, ingress, imagePaths)

	wg.Wait()
	log.Println("Service shutdown complete")
}

// attachRemoteDetector points the pipeline's detector-input/output hop at
// Redis Streams instead of the default in-process pair, so tile tensors and
// raw detections cross a real process boundary to an out-of-process
// detector. The pipeline then runs with no in-process detector.Runner at
// all; whatever process drains detector-in and produces on detector-out is
// responsible for the same N-producer sentinel coalescing detector.Runner
// would otherwise do.
func attachRemoteDetector(ctx context.Context, p *pipeline.Pipeline, redisAddr string) error {
	consumer, _ := os.Hostname()

	in, err := redisq.New[imagejob.TileTensor](redisAddr, "tiledetect:detector:in", "detector", consumer)
	if err != nil {
		return fmt.Errorf("detector-in stream: %w", err)
	}
	out, err := redisq.New[imagejob.RawTileDetection](redisAddr, "tiledetect:detector:out", "tile-nms", consumer)
	if err != nil {
		return fmt.Errorf("detector-out stream: %w", err)
	}

	p.DetectorIn = in
	p.DetectorOut = out
	go in.StartReclaimLoop(ctx, 30*time.Second, 30*time.Second)
	go out.StartReclaimLoop(ctx, 30*time.Second, 30*time.Second)
	log.Printf("Detector adapter: Redis Streams at %s (in=%s, out=%s)", redisAddr, "tiledetect:detector:in", "tiledetect:detector:out")
	return nil
}

func feedIngress(ctx context.Context, ingress queue.Queue[imagejob.ImageJob], paths []string) {
	for _, path := range paths {
		job, err := loadImageJob(path)
		if err != nil {
			log.Printf("Skipping %s: decode failure: %v", path, err)
			continue
		}
		if err := ingress.Put(ctx, queue.Of(job)); err != nil {
			log.Printf("Failed to enqueue %s: %v", path, err)
			return
		}
	}
	if err := ingress.Put(ctx, queue.Sentinel[imagejob.ImageJob]()); err != nil {
		log.Printf("Failed to enqueue terminal sentinel: %v", err)
	}
}

func writeEgress(ctx context.Context, egressQ queue.Queue[imagejob.EgressRecord], outputDir string) {
	for {
		msg, err := egressQ.Get(ctx)
		if err != nil {
			log.Printf("Egress drain stopped: %v", err)
			return
		}
		if msg.Sentinel {
			log.Println("Egress drained, all images written")
			return
		}

		record := msg.Value
		base := filepath.Base(record.Image)
		ext := filepath.Ext(base)
		outPath := filepath.Join(outputDir, base[:len(base)-len(ext)]+".json")
		if err := writeJSON(outPath, record); err != nil {
			log.Printf("Failed to write result for %s: %v", record.Image, err)
			continue
		}
		log.Printf("Wrote %d detections for %s to %s", len(record.Objects), record.Image, outPath)
	}
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadImageJob(path string) (imagejob.ImageJob, error) {
	file, err := os.Open(path)
	if err != nil {
		return imagejob.ImageJob{}, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return imagejob.ImageJob{}, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	pixels := make([][][3]byte, height)
	for y := 0; y < height; y++ {
		pixels[y] = make([][3]byte, width)
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// input color order is BGR; RGBA() returns 16-bit-scaled channels.
			pixels[y][x] = [3]byte{byte(b >> 8), byte(g >> 8), byte(r >> 8)}
		}
	}

	return imagejob.ImageJob{Name: path, Pixels: pixels}, nil
}

func findImages(dir string) []string {
	var images []string
	for _, pattern := range []string{"*.png", "*.jpg", "*.jpeg"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err == nil {
			images = append(images, matches...)
		}
	}
	return images
}
