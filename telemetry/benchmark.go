package telemetry

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/meso"
)

// StepMetrics is one sampled row of network-wide statistics, taken
// across every segment at a single tick: the segment-queue quantities
// this engine actually tracks, not platoon or intersection counters.
type StepMetrics struct {
	Tick           int64   `json:"tick"`
	SegmentCount   int     `json:"segment_count"`
	VehicleCount   int     `json:"vehicle_count"`
	AverageSpeed   float64 `json:"average_speed"`
	AverageFlow    float64 `json:"average_flow"`
	AverageOccupancy float64 `json:"average_occupancy"`
	JammedSegments int     `json:"jammed_segments"`
}

// RunSummary aggregates a whole Benchmark run.
type RunSummary struct {
	TotalSteps         int     `json:"total_steps"`
	AverageVehicles    float64 `json:"average_vehicles"`
	AverageSpeed       float64 `json:"average_speed"`
	AverageOccupancy   float64 `json:"average_occupancy"`
	MaxJammedSegments  int     `json:"max_jammed_segments"`
	RuntimeSeconds     float64 `json:"runtime_seconds"`
	Timestamp          string  `json:"timestamp"`
}

// Benchmark samples StepMetrics from a network at each call to
// Sample, and writes the accumulated series to CSV plus a JSON
// RunSummary on Save: a two-file (per-step CSV, aggregate JSON)
// output pair.
type Benchmark struct {
	name      string
	network   *meso.Network
	log       *logrus.Logger
	startedAt time.Time
	samples   []StepMetrics
}

// NewBenchmark builds a Benchmark named name, sampling network.
func NewBenchmark(name string, network *meso.Network, log *logrus.Logger) *Benchmark {
	if log == nil {
		log = logrus.New()
	}
	return &Benchmark{name: name, network: network, log: log, startedAt: time.Now()}
}

// Sample appends one StepMetrics row computed from the network's
// current state at tick t.
func (b *Benchmark) Sample(t simtime.Tick) {
	segs := b.network.AllSegments()
	m := StepMetrics{Tick: int64(t), SegmentCount: len(segs)}

	var speedSum, flowSum, occupancySum float64
	for _, seg := range segs {
		m.VehicleCount += seg.CarCount()
		speedSum += seg.MeanSpeed(true)
		flowSum += seg.Flow()
		occupancySum += seg.Occupancy()
		if !seg.Free() {
			m.JammedSegments++
		}
	}
	if len(segs) > 0 {
		m.AverageSpeed = speedSum / float64(len(segs))
		m.AverageFlow = flowSum / float64(len(segs))
		m.AverageOccupancy = occupancySum / float64(len(segs))
	}
	b.samples = append(b.samples, m)
}

// Save writes benchmark_<name>_<timestamp>.csv (one row per Sample
// call) and summary_<name>_<timestamp>.json (the aggregated
// RunSummary) into dir, creating dir if needed.
func (b *Benchmark) Save(dir string) error {
	if len(b.samples) == 0 {
		return fmt.Errorf("benchmark %q: no samples collected", b.name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating benchmark output dir: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	csvPath := fmt.Sprintf("%s/benchmark_%s_%s.csv", dir, b.name, stamp)
	if err := b.writeCSV(csvPath); err != nil {
		return err
	}

	jsonPath := fmt.Sprintf("%s/summary_%s_%s.json", dir, b.name, stamp)
	if err := b.writeSummary(jsonPath); err != nil {
		return err
	}

	b.log.WithFields(logrus.Fields{"csv": csvPath, "summary": jsonPath}).Info("benchmark results saved")
	return nil
}

func (b *Benchmark) writeCSV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating benchmark CSV: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{"Tick", "SegmentCount", "VehicleCount", "AverageSpeed", "AverageFlow", "AverageOccupancy", "JammedSegments"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing benchmark CSV header: %w", err)
	}
	for _, m := range b.samples {
		record := []string{
			fmt.Sprintf("%d", m.Tick),
			fmt.Sprintf("%d", m.SegmentCount),
			fmt.Sprintf("%d", m.VehicleCount),
			fmt.Sprintf("%.2f", m.AverageSpeed),
			fmt.Sprintf("%.2f", m.AverageFlow),
			fmt.Sprintf("%.4f", m.AverageOccupancy),
			fmt.Sprintf("%d", m.JammedSegments),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing benchmark CSV record: %w", err)
		}
	}
	return nil
}

func (b *Benchmark) writeSummary(path string) error {
	var vehicleTotal, speedTotal, occupancyTotal float64
	maxJammed := 0
	for _, m := range b.samples {
		vehicleTotal += float64(m.VehicleCount)
		speedTotal += m.AverageSpeed
		occupancyTotal += m.AverageOccupancy
		if m.JammedSegments > maxJammed {
			maxJammed = m.JammedSegments
		}
	}
	n := float64(len(b.samples))
	summary := RunSummary{
		TotalSteps:        len(b.samples),
		AverageVehicles:   vehicleTotal / n,
		AverageSpeed:       speedTotal / n,
		AverageOccupancy:  occupancyTotal / n,
		MaxJammedSegments: maxJammed,
		RuntimeSeconds:    time.Since(b.startedAt).Seconds(),
		Timestamp:         time.Now().Format("2006-01-02T15:04:05"),
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling benchmark summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing benchmark summary: %w", err)
	}
	return nil
}
