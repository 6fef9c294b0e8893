package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	StatusRatio  float64
	ReadRatio    float64
	PatientLimit int
	DoctorLimit  int
	Days         int
	PostgresDSN  string
	JWTSecret    string
	JWTIssuer    string
}

// DataPool holds the accounts the workers act as and the appointments they created.
type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID
	Dates    []string

	mu           sync.RWMutex
	appointments []bookedRef
}

type bookedRef struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
}

func (dp *DataPool) AddAppointment(ref bookedRef) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, ref)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (bookedRef, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedRef{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[min2(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min2(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking   OperationMetrics
	SetStatus OperationMetrics
	Slots     OperationMetrics
	List      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	tokens  *auth.TokenManager
	metrics Metrics

	tokenMu    sync.Mutex
	tokenCache map[uuid.UUID]string
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f status=%.2f read=%.2f days=%d",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.StatusRatio, cfg.ReadRatio, cfg.Days)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d doctors", len(dataPool.Patients), len(dataPool.Doctors))

	sim := &Simulator{
		config:     cfg,
		pool:       dataPool,
		client:     &http.Client{Timeout: 10 * time.Second},
		tokens:     auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer),
		tokenCache: make(map[uuid.UUID]string),
	}

	sim.Run()
	sim.PrintReport()

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelVerify()
	if err := sim.Verify(verifyCtx, pgPool); err != nil {
		log.Fatalf("verification failed: %v", err)
	}
	log.Println("verification passed: no slot holds more than one active appointment")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		StatusRatio:  getFloat("SIM_STATUS_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 400),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 5),
		Days:         getInt("SIM_DAYS", 2),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
		JWTIssuer:    baseCfg.JWTIssuer,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.StatusRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.StatusRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	var err error
	dataPool.Patients, err = loadIDs(ctx, pool, "patient", cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	// Few doctors over few days keeps contention on each slot high.
	dataPool.Doctors, err = loadIDs(ctx, pool, "doctor", cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded, run cmd/seed first")
	}

	start := appointment.CalendarDate(time.Now().UTC()).AddDate(0, 0, 1)
	for i := 0; i < cfg.Days; i++ {
		dataPool.Dates = append(dataPool.Dates, start.AddDate(0, 0, i).Format(appointment.DateLayout))
	}

	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, role string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
		SELECT id FROM accounts
		WHERE role = $1 AND is_active
		ORDER BY created_at
		LIMIT $2
	`, role, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookingRatio+s.config.StatusRatio {
				s.doSetStatus(ctx, rng)
			} else if rng.Intn(2) == 0 {
				s.doSlots(ctx, rng)
			} else {
				s.doList(ctx, rng)
			}
		}
	}
}

func (s *Simulator) token(id uuid.UUID, role auth.Role) string {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	if tok, ok := s.tokenCache[id]; ok {
		return tok
	}
	tok, err := s.tokens.Issue(auth.Identity{ID: id, Role: role}, time.Hour)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	s.tokenCache[id] = tok
	return tok
}

func (s *Simulator) call(ctx context.Context, method, path, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	grid := appointment.Grid()
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, body, err := s.call(ctx, http.MethodPost, "/appointments", s.token(patientID, auth.RolePatient), map[string]string{
		"doctor_id": doctorID.String(),
		"date":      s.pool.Dates[rng.Intn(len(s.pool.Dates))],
		"time_slot": grid[rng.Intn(len(grid))],
	})
	latency := time.Since(start)

	success := err == nil && status == http.StatusCreated
	conflict := err == nil && status == http.StatusConflict

	if success {
		var apptResp struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(body, &apptResp) == nil && apptResp.ID != uuid.Nil {
			s.pool.AddAppointment(bookedRef{ID: apptResp.ID, DoctorID: doctorID})
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doSetStatus(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	target := "completed"
	if rng.Intn(3) == 0 {
		target = "cancelled"
	}

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodPatch,
		fmt.Sprintf("/appointments/%s/status", ref.ID), s.token(ref.DoctorID, auth.RoleDoctor),
		map[string]string{"status": target})
	latency := time.Since(start)

	// 409 here is a repeated transition on a terminal appointment.
	s.metrics.SetStatus.Record(latency, err == nil && status == http.StatusOK, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/slots?doctor_id=%s&date=%s", doctorID, s.pool.Dates[rng.Intn(len(s.pool.Dates))]),
		s.token(patientID, auth.RolePatient), nil)
	latency := time.Since(start)

	s.metrics.Slots.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodGet, "/appointments?limit=20&offset=0", s.token(patientID, auth.RolePatient), nil)
	latency := time.Since(start)

	s.metrics.List.Record(latency, err == nil && status == http.StatusOK, false)
}

// Verify checks the store for double bookings and spot-checks that every active
// booking is missing from the availability the API reports.
func (s *Simulator) Verify(ctx context.Context, pool *pgxpool.Pool) error {
	var dupes int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT doctor_id, date, time_slot
			FROM appointments
			WHERE status <> 'cancelled'
			GROUP BY doctor_id, date, time_slot
			HAVING count(*) > 1
		) d
	`).Scan(&dupes)
	if err != nil {
		return fmt.Errorf("count duplicates: %w", err)
	}
	if dupes > 0 {
		return fmt.Errorf("%d slots hold more than one active appointment", dupes)
	}

	caller := s.token(s.pool.Patients[0], auth.RolePatient)
	for _, doctorID := range s.pool.Doctors {
		for _, date := range s.pool.Dates {
			day, err := appointment.ParseDate(date)
			if err != nil {
				return err
			}

			held := make(map[string]bool)
			rows, err := pool.Query(ctx, `
				SELECT time_slot FROM appointments
				WHERE doctor_id = $1 AND date = $2 AND status <> 'cancelled'
			`, doctorID, day)
			if err != nil {
				return fmt.Errorf("load held slots: %w", err)
			}
			for rows.Next() {
				var slot string
				if err := rows.Scan(&slot); err != nil {
					rows.Close()
					return err
				}
				held[slot] = true
			}
			rows.Close()

			status, body, err := s.call(ctx, http.MethodGet,
				fmt.Sprintf("/slots?doctor_id=%s&date=%s", doctorID, date), caller, nil)
			if err != nil || status != http.StatusOK {
				return fmt.Errorf("read availability for %s on %s: status=%d err=%v", doctorID, date, status, err)
			}
			var resp struct {
				Slots []string `json:"slots"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return err
			}
			for _, slot := range resp.Slots {
				if held[slot] {
					return fmt.Errorf("slot %s for %s on %s is booked but reported available", slot, doctorID, date)
				}
			}
			if len(resp.Slots)+len(held) != len(appointment.Grid()) {
				return fmt.Errorf("availability for %s on %s does not add up: %d free, %d held", doctorID, date, len(resp.Slots), len(held))
			}
		}
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended keys: %d doctors x %d days x %d slots\n",
		len(s.pool.Doctors), len(s.pool.Dates), len(appointment.Grid()))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Set status", &s.metrics.SetStatus)
	printOperationReport("Available slots", &s.metrics.Slots)
	printOperationReport("List appointments", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
