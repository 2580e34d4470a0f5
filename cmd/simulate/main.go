package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/vidasaude/telehealth-core/internal/auth"
	"github.com/vidasaude/telehealth-core/internal/config"
	"github.com/vidasaude/telehealth-core/internal/db"
	"github.com/vidasaude/telehealth-core/pkg/logger"
)

type SimConfig struct {
	APIBaseURL       string        `env:"SIM_API_BASE_URL" envDefault:"http://localhost:8080"`
	Duration         time.Duration `env:"SIM_DURATION" envDefault:"30s"`
	Workers          int           `env:"SIM_WORKERS" envDefault:"10"`
	JoinRatio        float64       `env:"SIM_JOIN_RATIO" envDefault:"0.4"`
	ReadRatio        float64       `env:"SIM_READ_RATIO" envDefault:"0.6"`
	AppointmentLimit int           `env:"SIM_APPOINTMENT_LIMIT" envDefault:"200"`
}

type apptRef struct {
	ID     int64
	UserID int64
}

// DataPool holds the users and open appointments the workers act on.
type DataPool struct {
	Users        map[int64]auth.Identity
	Doctors      []auth.Identity
	Appointments []apptRef
	tokens       map[int64]string

	mu    sync.Mutex
	rooms map[int64]string // room name first reported per appointment
}

// ObserveRoom records the room a join returned and reports whether it
// differs from one seen earlier for the same appointment.
func (dp *DataPool) ObserveRoom(apptID int64, room string) (mismatch bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	prev, ok := dp.rooms[apptID]
	if !ok {
		dp.rooms[apptID] = room
		return false
	}
	return prev != room
}

func (dp *DataPool) RoomCount() int {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return len(dp.rooms)
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

func (om *OperationMetrics) Stats() (avg, low, high, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	low = latencies[0]
	high = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, low, high, p50, p95
}

type Metrics struct {
	Join           OperationMetrics
	ReadByID       OperationMetrics
	List           OperationMetrics
	RoomMismatches int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load base config")
	}
	logger.Init(baseCfg.LogLevel, "console")

	var cfg SimConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("parse simulator env")
	}
	if err := validateConfig(&cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("join", cfg.JoinRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, db.PoolOptions{MaxConns: 2, ApplicationName: "telehealth-simulate"})
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg, auth.NewTokenSigner(baseCfg.JWTSecret, time.Now))
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}

	log.Info().
		Int("users", len(dataPool.Users)).
		Int("doctors", len(dataPool.Doctors)).
		Int("appointments", len(dataPool.Appointments)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 30 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func validateConfig(cfg *SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	total := cfg.JoinRatio + cfg.ReadRatio
	if total <= 0 {
		return fmt.Errorf("SIM_JOIN_RATIO + SIM_READ_RATIO must be > 0")
	}
	cfg.JoinRatio /= total
	cfg.ReadRatio /= total
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig, signer *auth.TokenSigner) (*DataPool, error) {
	dp := &DataPool{
		Users:  make(map[int64]auth.Identity),
		tokens: make(map[int64]string),
		rooms:  make(map[int64]string),
	}

	rows, err := pool.Query(ctx, `
		SELECT id, user_id FROM appointments
		WHERE status IN ('scheduled', 'in_progress')
		ORDER BY scheduled_at
		LIMIT $1
	`, cfg.AppointmentLimit)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	for rows.Next() {
		var a apptRef
		if err := rows.Scan(&a.ID, &a.UserID); err != nil {
			rows.Close()
			return nil, err
		}
		dp.Appointments = append(dp.Appointments, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT id, email, role, full_name FROM users
		WHERE role = 'doctor' OR id IN (
			SELECT user_id FROM appointments WHERE status IN ('scheduled', 'in_progress')
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   auth.Identity
			role string
		)
		if err := rows.Scan(&id.ID, &id.Email, &role, &id.Name); err != nil {
			return nil, err
		}
		id.Role = auth.Role(role)

		token, err := signer.Sign(id, cfg.Duration+time.Hour)
		if err != nil {
			return nil, fmt.Errorf("sign token: %w", err)
		}
		dp.Users[id.ID] = id
		dp.tokens[id.ID] = token
		if id.IsDoctor() {
			dp.Doctors = append(dp.Doctors, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dp.Appointments) == 0 {
		return nil, fmt.Errorf("no open appointments loaded")
	}
	if len(dp.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded")
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if rng.Float64() < s.config.JoinRatio {
				s.doJoin(ctx, rng)
				continue
			}
			if rng.Intn(2) == 0 {
				s.doReadByID(ctx, rng)
			} else {
				s.doList(ctx, rng)
			}
		}
	}
}

// doJoin has a random doctor join a random open appointment. Doctors race
// to claim unassigned appointments, so 403 and 409 count as conflicts.
func (s *Simulator) doJoin(ctx context.Context, rng *rand.Rand) {
	appt := s.pool.Appointments[rng.Intn(len(s.pool.Appointments))]
	doc := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	start := time.Now()
	resp, err := s.send(ctx, http.MethodPost, fmt.Sprintf("/api/appointments/%d/join", appt.ID), doc.ID)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			success = true
			var body struct {
				Room struct {
					Name string `json:"name"`
				} `json:"room"`
			}
			if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Room.Name != "" {
				if s.pool.ObserveRoom(appt.ID, body.Room.Name) {
					atomic.AddInt64(&s.metrics.RoomMismatches, 1)
					log.Error().Int64("appointment_id", appt.ID).Str("room", body.Room.Name).Msg("join returned a different room")
				}
			}
		case http.StatusForbidden, http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Join.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt := s.pool.Appointments[rng.Intn(len(s.pool.Appointments))]

	start := time.Now()
	resp, err := s.send(ctx, http.MethodGet, fmt.Sprintf("/api/appointments/%d", appt.ID), appt.UserID)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	appt := s.pool.Appointments[rng.Intn(len(s.pool.Appointments))]
	userID := appt.UserID
	if rng.Intn(2) == 0 {
		userID = s.pool.Doctors[rng.Intn(len(s.pool.Doctors))].ID
	}

	start := time.Now()
	resp, err := s.send(ctx, http.MethodGet, "/api/appointments?limit=20&offset=0", userID)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	s.metrics.List.Record(latency, success, false)
}

func (s *Simulator) send(ctx context.Context, method, path string, asUser int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.pool.tokens[asUser])
	return s.client.Do(req)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Rooms observed: %d\n", s.pool.RoomCount())
	fmt.Printf("Room mismatches: %d\n", atomic.LoadInt64(&s.metrics.RoomMismatches))
	fmt.Println()

	printOperationReport("Join", &s.metrics.Join)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, low, high, p50, p95 := om.Stats()

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
		avg.Round(time.Millisecond), low.Round(time.Millisecond), high.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
