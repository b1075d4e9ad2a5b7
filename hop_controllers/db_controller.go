package hop_controllers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"regexp"
	"runtime"
	"strings"
	"time"

	"hopfield_sync/hop_core"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	timeLayout = "2006-01-02 15:04:05"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EncodeAll/DecodeAll are safe for concurrent use on a shared coder.
var (
	trajectoryEncoder *zstd.Encoder
	trajectoryDecoder *zstd.Decoder
)

func init() {
	var err error
	if trajectoryEncoder, err = zstd.NewWriter(nil); err != nil {
		panic(fmt.Sprintf("zstd encoder: %v", err))
	}
	if trajectoryDecoder, err = zstd.NewReader(nil); err != nil {
		panic(fmt.Sprintf("zstd decoder: %v", err))
	}
}

type DatabaseController struct {
	db     *sql.DB
	driver string
	table  string
}

// NewDatabaseController opens the database described by cfg and makes sure
// the sessions table exists.
func NewDatabaseController(cfg ServerConfig) (*DatabaseController, error) {
	var dsn string
	switch cfg.DBDriver {
	case DriverMySQL:
		mysqlCfg := mysql.NewConfig()
		mysqlCfg.User = cfg.DBUser
		mysqlCfg.Passwd = cfg.DBPassword
		mysqlCfg.Net = "tcp"
		mysqlCfg.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
		mysqlCfg.DBName = cfg.DBName
		dsn = mysqlCfg.FormatDSN()
	case DriverSQLite:
		dsn = cfg.DBPath
	default:
		return nil, fmt.Errorf("database driver is invalid: %s", cfg.DBDriver)
	}
	return OpenDatabaseController(cfg.DBDriver, dsn, cfg.DBTable)
}

func OpenDatabaseController(driver string, dsn string, table string) (*DatabaseController, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("table name is invalid: %q", table)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY
		// from concurrent simulation workers.
		db.SetMaxOpenConns(1)
	}

	dc := &DatabaseController{db: db, driver: driver, table: table}
	if err := dc.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return dc, nil
}

func (dc *DatabaseController) CloseDb() error {
	return dc.db.Close()
}

func (dc *DatabaseController) InitSchema() error {
	blobType := "BLOB"
	if dc.driver == DriverMySQL {
		blobType = "LONGBLOB"
	}
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			session_uid VARCHAR(64) NOT NULL,
			host VARCHAR(255),
			seed BIGINT,
			program_version VARCHAR(32),
			n INT,
			k INT,
			noise INT,
			corruption VARCHAR(32),
			storage_rule VARCHAR(32),
			update_rule VARCHAR(32),
			start_time VARCHAR(19),
			end_time VARCHAR(19),
			status VARCHAR(16),
			reason VARCHAR(16),
			iterations INT,
			converged INT,
			recovered INT,
			initial_distance INT,
			final_distance INT,
			target_energy DOUBLE,
			final_energy DOUBLE,
			trajectory %s
		)`, dc.table, blobType)
	if _, err := dc.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create table %s: %w", dc.table, err)
	}
	return nil
}

// InsertSession stores one finished session and returns its row id.
func (dc *DatabaseController) InsertSession(sessionUid string, config RecallSettings, session SessionData, startTime time.Time, endTime time.Time) (string, error) {
	trajectory, err := encodeTrajectory(session.Trajectory)
	if err != nil {
		return "", err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = os.Getenv("HOSTNAME")
	}

	id := uuid.New().String()
	query := fmt.Sprintf(`INSERT INTO %s (id, session_uid, host, seed, program_version, n, k, noise, corruption, storage_rule, update_rule,
		start_time, end_time, status, reason, iterations, converged, recovered, initial_distance, final_distance, target_energy, final_energy, trajectory)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, dc.table)
	_, err = dc.db.Exec(query,
		id, sessionUid, hostname, session.Seed, runtime.Version(),
		config.N, config.K, config.Noise,
		strings.ToUpper(config.Corruption), strings.ToUpper(config.StorageRule), strings.ToUpper(config.UpdateRule),
		startTime.Format(timeLayout), endTime.Format(timeLayout),
		session.Status, string(session.Reason), session.Iterations,
		boolToInt(session.Converged), boolToInt(session.Recovered),
		session.InitialDistance, session.FinalDistance,
		session.TargetEnergy, session.FinalEnergy,
		trajectory,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}
	return id, nil
}

func (dc *DatabaseController) FetchTrajectory(id string) (hop_core.Trajectory, error) {
	var blob []byte
	err := dc.db.QueryRow(fmt.Sprintf("SELECT trajectory FROM %s WHERE id = ?", dc.table), id).Scan(&blob)
	if err != nil {
		return hop_core.Trajectory{}, fmt.Errorf("error retrieving trajectory %s: %w", id, err)
	}
	return decodeTrajectory(blob)
}

// FetchFullTableAsJSON dumps every session row except the trajectory blob.
func (dc *DatabaseController) FetchFullTableAsJSON() (string, error) {
	rows, err := dc.db.Query(fmt.Sprintf(`SELECT id, session_uid, host, seed, program_version, n, k, noise, corruption, storage_rule, update_rule,
		start_time, end_time, status, reason, iterations, converged, recovered, initial_distance, final_distance, target_energy, final_energy
		FROM %s ORDER BY start_time, id`, dc.table))
	if err != nil {
		return "", fmt.Errorf("error retrieving data: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("error getting columns: %w", err)
	}

	results := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePointers := make([]interface{}, len(columns))
		for i := range values {
			valuePointers[i] = &values[i]
		}
		if err := rows.Scan(valuePointers...); err != nil {
			return "", fmt.Errorf("error scanning row: %w", err)
		}

		rowMap := make(map[string]interface{})
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				rowMap[col] = string(b)
			} else {
				rowMap[col] = values[i]
			}
		}
		results = append(results, rowMap)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating rows: %w", err)
	}

	jsonData, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error marshaling results to JSON: %w", err)
	}
	return string(jsonData), nil
}

// QueryRecoveryRate aggregates sessions per (n, k, corruption).
func (dc *DatabaseController) QueryRecoveryRate() ([]RecoveryRateData, error) {
	query := fmt.Sprintf(`
		SELECT
			n,
			k,
			corruption,
			SUM(converged) AS converged_count,
			SUM(recovered) AS recovered_count,
			COUNT(*) AS total_count,
			AVG(iterations) AS avg_iterations
		FROM %s
		GROUP BY n, k, corruption
		ORDER BY n, k, corruption`, dc.table)

	rows, err := dc.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RecoveryRateData
	for rows.Next() {
		var data RecoveryRateData
		if err := rows.Scan(&data.N, &data.K, &data.Corruption, &data.ConvergedCount, &data.RecoveredCount, &data.TotalCount, &data.AvgIterations); err != nil {
			return nil, err
		}
		if data.TotalCount > 0 {
			data.RecoveryRate = float64(data.RecoveredCount) / float64(data.TotalCount)
		}
		results = append(results, data)
	}
	return results, rows.Err()
}

// QuerySurfaceGraph groups sessions by two axes and returns a header row
// followed by one row per group.
func (dc *DatabaseController) QuerySurfaceGraph(x string, y string, corruption string, updateRule string) ([][]interface{}, error) {
	colX, okX := graphAxisColumns[strings.ToUpper(x)]
	colY, okY := graphAxisColumns[strings.ToUpper(y)]
	if !okX || !okY {
		return nil, fmt.Errorf("invalid graph axis: %s, %s", x, y)
	}
	query := fmt.Sprintf(`SELECT %s, %s,
			MIN(iterations), MAX(iterations), AVG(iterations), AVG(recovered)
		FROM %s
		WHERE corruption = ? AND update_rule = ?
		GROUP BY %s, %s
		ORDER BY %s, %s`, colX, colY, dc.table, colX, colY, colX, colY)
	rows, err := dc.db.Query(query, strings.ToUpper(corruption), strings.ToUpper(updateRule))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	graphData := [][]interface{}{{"X", "Y", "iterations_min", "iterations_max", "iterations_avg", "recovery_rate"}}
	for rows.Next() {
		var vx, vy int
		var itMin, itMax, itAvg, recovery float64
		if err := rows.Scan(&vx, &vy, &itMin, &itMax, &itAvg, &recovery); err != nil {
			return nil, err
		}
		graphData = append(graphData, []interface{}{vx, vy, itMin, itMax, itAvg, recovery})
	}
	return graphData, rows.Err()
}

// QueryIterationHistogram buckets sessions by column into bucketCount equal
// ranges and reports, per bucket, how many recovered their pattern and how
// many iterations the recovered ones took on average.
func (dc *DatabaseController) QueryIterationHistogram(column string, corruption string, updateRule string, bucketCount int) ([]HistogramEntry, error) {
	col, ok := histogramColumns[strings.ToUpper(column)]
	if !ok {
		return nil, fmt.Errorf("invalid histogram column: %s", column)
	}

	var lo, hi sql.NullInt64
	err := dc.db.QueryRow(fmt.Sprintf(`SELECT MIN(%s), MAX(%s) FROM %s WHERE corruption = ? AND update_rule = ?`, col, col, dc.table),
		strings.ToUpper(corruption), strings.ToUpper(updateRule)).Scan(&lo, &hi)
	if err != nil {
		return nil, fmt.Errorf("error reading %s range: %w", col, err)
	}
	results := []HistogramEntry{}
	if !lo.Valid || !hi.Valid {
		return results, nil
	}

	query := fmt.Sprintf(`
		SELECT
			%s AS bucket,
			MIN(%s) AS bucket_start,
			SUM(recovered) AS recovered_count,
			COUNT(*) AS total_count,
			AVG(CASE WHEN recovered = 1 THEN iterations END) AS avg_iterations
		FROM %s
		WHERE corruption = ? AND update_rule = ?
		GROUP BY bucket
		ORDER BY bucket_start`, dc.generateBucketSubquery(int(lo.Int64), int(hi.Int64), bucketCount, col), col, dc.table)
	rows, err := dc.db.Query(query, strings.ToUpper(corruption), strings.ToUpper(updateRule))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry HistogramEntry
		var start int
		var avg sql.NullFloat64
		if err := rows.Scan(&entry.RangeLabel, &start, &entry.RecoveredCount, &entry.TotalCount, &avg); err != nil {
			return nil, err
		}
		entry.AvgIterationsToRecovery = avg.Float64
		if entry.TotalCount > 0 {
			entry.RecoveryRate = float64(entry.RecoveredCount) / float64(entry.TotalCount)
		}
		results = append(results, entry)
	}
	return results, rows.Err()
}

func (dc *DatabaseController) GetSessionsByK(k int, updateRule string) (*SessionAvgsAndCounts, error) {
	query := fmt.Sprintf(`
		SELECT
			COALESCE(AVG(iterations), 0),
			COUNT(*),
			COALESCE(SUM(converged), 0),
			COALESCE(SUM(recovered), 0)
		FROM %s
		WHERE k = ? AND update_rule = ?`, dc.table)

	result := SessionAvgsAndCounts{K: k, UpdateRule: strings.ToUpper(updateRule)}
	err := dc.db.QueryRow(query, k, strings.ToUpper(updateRule)).Scan(
		&result.AvgIterations,
		&result.TotalCount,
		&result.ConvergedCount,
		&result.RecoveredCount,
	)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	result.LimitReachedCount = result.TotalCount - result.ConvergedCount
	return &result, nil
}

// generateBucketSubquery splits [lo, hi] into at most bucketCount ranges of
// equal width and returns a CASE expression labelling each row "start-end".
func (dc *DatabaseController) generateBucketSubquery(lo, hi, bucketCount int, column string) string {
	if bucketCount < 1 {
		bucketCount = 1
	}
	bucketSize := (hi - lo + bucketCount) / bucketCount

	var conditions []string
	for start := lo; start <= hi; start += bucketSize {
		end := min(start+bucketSize-1, hi)
		conditions = append(conditions, fmt.Sprintf("WHEN %s BETWEEN %d AND %d THEN '%d-%d'", column, start, end, start, end))
	}
	return "CASE " + strings.Join(conditions, " ") + fmt.Sprintf(" ELSE '%d+' END", hi)
}

var histogramColumns = map[string]string{
	"INITIAL_DISTANCE": "initial_distance",
	"NOISE":            "noise",
	"FINAL_DISTANCE":   "final_distance",
}

func (dc *DatabaseController) ValidateGraphAxis(axis string) bool {
	_, ok := graphAxisColumns[strings.ToUpper(axis)]
	return ok
}

var graphAxisColumns = map[string]string{
	"N":     "n",
	"K":     "k",
	"NOISE": "noise",
}

func encodeTrajectory(trajectory hop_core.Trajectory) ([]byte, error) {
	raw, err := json.Marshal(trajectory)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trajectory: %w", err)
	}
	return trajectoryEncoder.EncodeAll(raw, nil), nil
}

func decodeTrajectory(blob []byte) (hop_core.Trajectory, error) {
	var trajectory hop_core.Trajectory
	raw, err := trajectoryDecoder.DecodeAll(blob, nil)
	if err != nil {
		return trajectory, fmt.Errorf("failed to decompress trajectory: %w", err)
	}
	if err := json.Unmarshal(raw, &trajectory); err != nil {
		return trajectory, fmt.Errorf("failed to unmarshal trajectory: %w", err)
	}
	return trajectory, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
