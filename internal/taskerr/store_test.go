package taskerr

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"taskops/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB connects to the MySQL instance named by TASKOPS_TEST_MYSQL_DSN
// and resets the task tables. Tests are skipped when the variable is unset.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TASKOPS_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TASKOPS_TEST_MYSQL_DSN not set, skipping DB-backed tests")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to test MySQL: %v", err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Task{}, &model.TaskError{}); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	if err := db.Exec("DELETE FROM task_errors").Error; err != nil {
		t.Fatalf("failed to reset task_errors: %v", err)
	}
	if err := db.Exec("DELETE FROM tasks").Error; err != nil {
		t.Fatalf("failed to reset tasks: %v", err)
	}

	return db
}

func createTestTask(t *testing.T, db *gorm.DB, name string) *model.Task {
	t.Helper()

	task := &model.Task{
		Name:     name,
		App:      "pfsense",
		IsActive: true,
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("failed to create test task: %v", err)
	}
	return task
}

func testContext(occurredAt time.Time) ErrorContext {
	return ErrorContext{
		Type:         "ConnectionError",
		FilePath:     "pfsense/services/dhcp_server.go",
		FunctionName: "FetchLeases",
		LineNumber:   42,
		Message:      "connection refused",
		OccurredAt:   occurredAt,
	}
}

func TestRecordFailure_CreatesNewRecord(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, nil)
	task := createTestTask(t, db, "pfsense.tasks.sync_dhcp_routes")

	now := time.Now().Truncate(time.Second)
	record, err := store.RecordFailure(task.ID, testContext(now))
	if err != nil {
		t.Fatalf("RecordFailure() failed: %v", err)
	}

	if record.Status != model.TaskErrorStatusNew {
		t.Errorf("Expected status new, got %s", record.Status)
	}
	if record.OccurrenceCount != 1 {
		t.Errorf("Expected occurrence count 1, got %d", record.OccurrenceCount)
	}
	if record.Cleared {
		t.Error("New record should not be cleared")
	}
	if !record.FirstSeen.Equal(record.LastSeen) {
		t.Errorf("Expected first_seen == last_seen, got %v vs %v", record.FirstSeen, record.LastSeen)
	}
}

func TestRecordFailure_DeduplicatesByIdentity(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, nil)
	task := createTestTask(t, db, "pfsense.tasks.sync_dhcp_routes")

	first := time.Now().Truncate(time.Second)
	if _, err := store.RecordFailure(task.ID, testContext(first)); err != nil {
		t.Fatalf("first RecordFailure() failed: %v", err)
	}

	second := testContext(first.Add(time.Minute))
	second.Message = "connection refused (attempt 2)"
	record, err := store.RecordFailure(task.ID, second)
	if err != nil {
		t.Fatalf("second RecordFailure() failed: %v", err)
	}

	var count int64
	db.Model(&model.TaskError{}).Where("task_id = ?", task.ID).Count(&count)
	if count != 1 {
		t.Fatalf("Expected exactly one stored record, got %d", count)
	}

	if record.OccurrenceCount != 2 {
		t.Errorf("Expected occurrence count 2, got %d", record.OccurrenceCount)
	}
	if record.Status != model.TaskErrorStatusOngoing {
		t.Errorf("Expected status ongoing, got %s", record.Status)
	}
	if record.ErrorMessage != "connection refused (attempt 2)" {
		t.Errorf("Expected latest message, got %q", record.ErrorMessage)
	}
	if !record.LastSeen.After(record.FirstSeen) {
		t.Errorf("Expected last_seen after first_seen, got %v vs %v", record.LastSeen, record.FirstSeen)
	}
}

func TestRecordFailure_DistinctIdentities(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, nil)
	task := createTestTask(t, db, "pfsense.tasks.sync_dhcp_routes")

	now := time.Now().Truncate(time.Second)
	if _, err := store.RecordFailure(task.ID, testContext(now)); err != nil {
		t.Fatalf("RecordFailure() failed: %v", err)
	}

	other := testContext(now)
	other.LineNumber = 99
	if _, err := store.RecordFailure(task.ID, other); err != nil {
		t.Fatalf("RecordFailure() failed: %v", err)
	}

	var count int64
	db.Model(&model.TaskError{}).Where("task_id = ?", task.ID).Count(&count)
	if count != 2 {
		t.Errorf("Expected two records for distinct identities, got %d", count)
	}
}

func TestRecordFailure_RevivesClearedRecord(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, nil)
	task := createTestTask(t, db, "pfsense.tasks.sync_dhcp_routes")

	now := time.Now().Truncate(time.Second)
	record, err := store.RecordFailure(task.ID, testContext(now))
	if err != nil {
		t.Fatalf("RecordFailure() failed: %v", err)
	}

	if _, err := store.Clear([]int{record.ID}, nil, now); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}

	revived, err := store.RecordFailure(task.ID, testContext(now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("RecordFailure() after clear failed: %v", err)
	}

	if revived.ID != record.ID {
		t.Errorf("Expected the same record to be revived, got ID %d vs %d", revived.ID, record.ID)
	}
	if revived.Status != model.TaskErrorStatusOngoing {
		t.Errorf("Expected status ongoing after revival, got %s", revived.Status)
	}
	if revived.IsResolved() {
		t.Error("Revived record should not be resolved")
	}
	if revived.ClearedAt != nil {
		t.Errorf("Expected cleared_at reset, got %v", revived.ClearedAt)
	}
	if revived.OccurrenceCount < 2 {
		t.Errorf("Expected occurrence history preserved across clear, got count %d", revived.OccurrenceCount)
	}
}

func TestSweepRegressions_RespectsRecency(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, nil)
	task := createTestTask(t, db, "pfsense.tasks.sync_dhcp_routes")

	now := time.Now().Truncate(time.Second)

	// Stale record: last seen five minutes ago
	stale := testContext(now.Add(-5 * time.Minute))
	staleRecord, err := store.RecordFailure(task.ID, stale)
	if err != nil {
		t.Fatalf("RecordFailure() failed: %v", err)
	}

	// Fresh record with a different identity
	fresh := testContext(now)
	fresh.FunctionName = "PushRoutes"
	freshRecord, err := store.RecordFailure(task.ID, fresh)
	if err != nil {
		t.Fatalf("RecordFailure() failed: %v", err)
	}

	swept, err := store.SweepRegressions(task.ID, now, time.Minute)
	if err != nil {
		t.Fatalf("SweepRegressions() failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("Expected 1 swept record, got %d", swept)
	}

	reload := func(id int) model.TaskError {
		var r model.TaskError
		if err := db.First(&r, id).Error; err != nil {
			t.Fatalf("failed to reload record %d: %v", id, err)
		}
		return r
	}

	if got := reload(staleRecord.ID); got.Status != model.TaskErrorStatusRegressed {
		t.Errorf("Expected stale record regressed, got %s", got.Status)
	}
	if got := reload(freshRecord.ID); got.Status != model.TaskErrorStatusNew {
		t.Errorf("Expected fresh record untouched, got %s", got.Status)
	}
}

func TestSweepRegressions_ExcludesCleared(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, nil)
	task := createTestTask(t, db, "pfsense.tasks.sync_dhcp_routes")

	now := time.Now().Truncate(time.Second)
	record, err := store.RecordFailure(task.ID, testContext(now.Add(-time.Hour)))
	if err != nil {
		t.Fatalf("RecordFailure() failed: %v", err)
	}

	if _, err := store.Clear([]int{record.ID}, nil, now); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}

	swept, err := store.SweepRegressions(task.ID, now, time.Minute)
	if err != nil {
		t.Fatalf("SweepRegressions() failed: %v", err)
	}
	if swept != 0 {
		t.Errorf("Expected no swept records, got %d", swept)
	}

	var reloaded model.TaskError
	if err := db.First(&reloaded, record.ID).Error; err != nil {
		t.Fatalf("failed to reload record: %v", err)
	}
	if reloaded.Status != model.TaskErrorStatusCleared {
		t.Errorf("Cleared record must stay cleared, got %s", reloaded.Status)
	}
}

func TestClear_IsUnconditional(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, nil)
	task := createTestTask(t, db, "pfsense.tasks.sync_dhcp_routes")

	now := time.Now().Truncate(time.Second)

	var ids []int
	for i := 0; i < 3; i++ {
		ec := testContext(now)
		ec.LineNumber = 100 + i
		record, err := store.RecordFailure(task.ID, ec)
		if err != nil {
			t.Fatalf("RecordFailure() failed: %v", err)
		}
		ids = append(ids, record.ID)
	}

	cleared, err := store.Clear(ids, nil, now)
	if err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	if cleared != 3 {
		t.Errorf("Expected 3 cleared records, got %d", cleared)
	}

	var records []model.TaskError
	if err := db.Where("task_id = ?", task.ID).Find(&records).Error; err != nil {
		t.Fatalf("failed to reload records: %v", err)
	}
	for _, r := range records {
		if !r.IsResolved() {
			t.Errorf("Record %d not fully cleared: cleared=%v status=%s", r.ID, r.Cleared, r.Status)
		}
		if r.ClearedAt == nil {
			t.Errorf("Record %d missing cleared_at", r.ID)
		}
	}
}

func TestClearByTask_SkipsNothingActive(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, nil)
	task := createTestTask(t, db, "pfsense.tasks.sync_dhcp_routes")

	cleared, err := store.ClearByTask(task.ID, nil, time.Now())
	if err != nil {
		t.Fatalf("ClearByTask() failed: %v", err)
	}
	if cleared != 0 {
		t.Errorf("Expected 0 cleared records, got %d", cleared)
	}
}

func TestRecordFailure_ConcurrentCreation(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, nil)
	task := createTestTask(t, db, "pfsense.tasks.sync_dhcp_routes")

	const workers = 8
	now := time.Now().Truncate(time.Second)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.RecordFailure(task.ID, testContext(now)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent RecordFailure() failed: %v", err)
	}

	var records []model.TaskError
	if err := db.Where("task_id = ?", task.ID).Find(&records).Error; err != nil {
		t.Fatalf("failed to load records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected exactly one record under concurrency, got %d", len(records))
	}
	if records[0].OccurrenceCount != workers {
		t.Errorf("Expected occurrence count %d, got %d", workers, records[0].OccurrenceCount)
	}
}

func TestCountByStatus(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, nil)
	task := createTestTask(t, db, "pfsense.tasks.sync_dhcp_routes")

	now := time.Now().Truncate(time.Second)
	for i := 0; i < 2; i++ {
		ec := testContext(now)
		ec.LineNumber = 200 + i
		if _, err := store.RecordFailure(task.ID, ec); err != nil {
			t.Fatalf("RecordFailure() failed: %v", err)
		}
	}

	ec := testContext(now)
	ec.LineNumber = 300
	record, err := store.RecordFailure(task.ID, ec)
	if err != nil {
		t.Fatalf("RecordFailure() failed: %v", err)
	}
	if _, err := store.Clear([]int{record.ID}, nil, now); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}

	counts, err := store.CountByStatus(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("CountByStatus() failed: %v", err)
	}

	if counts[model.TaskErrorStatusNew] != 2 {
		t.Errorf("Expected 2 new errors, got %d", counts[model.TaskErrorStatusNew])
	}
	if counts[model.TaskErrorStatusCleared] != 1 {
		t.Errorf("Expected 1 cleared error, got %d", counts[model.TaskErrorStatusCleared])
	}
}

func TestList_FilterByStatus(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, nil)
	task := createTestTask(t, db, "pfsense.tasks.sync_dhcp_routes")

	now := time.Now().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		ec := testContext(now)
		ec.LineNumber = 400 + i
		ec.Message = fmt.Sprintf("failure %d", i)
		if _, err := store.RecordFailure(task.ID, ec); err != nil {
			t.Fatalf("RecordFailure() failed: %v", err)
		}
	}

	records, total, err := store.List(task.ID, model.TaskErrorStatusNew, 1, 3)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 5 {
		t.Errorf("Expected total 5, got %d", total)
	}
	if len(records) != 3 {
		t.Errorf("Expected page of 3, got %d", len(records))
	}

	records, total, err = store.List(task.ID, model.TaskErrorStatusCleared, 1, 10)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 0 || len(records) != 0 {
		t.Errorf("Expected no cleared errors, got total=%d len=%d", total, len(records))
	}
}
