package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Reference: tomtom215-lyrebirdaudio-go/internal/config/backup.go. Kept
// the timestamped-backup-file shape but dropped BackupBeforeSave, which
// depended on that repo's own Config.Save method — a service spec file
// here is edited by the wizard or by hand, not serialized from a struct
// the config package owns.

const (
	BackupSuffix          = ".bak"
	BackupTimestampFormat = "2006-01-02T15-04-05"
)

// BackupInfo describes one backup file.
type BackupInfo struct {
	Path      string
	Name      string
	Timestamp time.Time
	Size      int64
}

// BackupService snapshots a service's YAML file before a destructive
// edit (guardian add overwriting an existing file, for instance).
func BackupService(servicePath, backupDir string) (string, error) {
	info, err := os.Stat(servicePath)
	if err != nil {
		return "", fmt.Errorf("service file not found: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("service path %s is a directory, not a file", servicePath)
	}

	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory %s: %w", backupDir, err)
	}

	data, err := os.ReadFile(servicePath)
	if err != nil {
		return "", fmt.Errorf("failed to read service file %s: %w", servicePath, err)
	}

	baseName := filepath.Base(servicePath)
	backupPath := filepath.Join(backupDir, fmt.Sprintf("%s.%s%s", baseName, time.Now().Format(BackupTimestampFormat), BackupSuffix))
	if _, err := os.Stat(backupPath); err == nil {
		backupPath = filepath.Join(backupDir, fmt.Sprintf("%s.%s%s", baseName, time.Now().Format("2006-01-02T15-04-05.000"), BackupSuffix))
	}

	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write backup %s: %w", backupPath, err)
	}
	return backupPath, nil
}

// ListBackups returns backups for serviceName (or all, if empty),
// newest first.
func ListBackups(backupDir, serviceName string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory %s: %w", backupDir, err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, BackupSuffix) {
			continue
		}
		if serviceName != "" && !strings.HasPrefix(name, serviceName+".yaml.") {
			continue
		}
		ts, err := parseBackupTimestamp(name)
		if err != nil {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Path:      filepath.Join(backupDir, name),
			Name:      name,
			Timestamp: ts,
			Size:      fi.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	return backups, nil
}

// RestoreBackup writes backupPath's contents back to servicePath,
// itself backing up whatever is currently at servicePath first.
func RestoreBackup(backupPath, servicePath, backupDir string) (string, error) {
	if _, err := os.Stat(backupPath); err != nil {
		return "", fmt.Errorf("backup file not found: %w", err)
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return "", fmt.Errorf("failed to read backup %s: %w", backupPath, err)
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("backup %s contains invalid YAML: %w", backupPath, err)
	}

	var previous string
	if _, err := os.Stat(servicePath); err == nil {
		previous, err = BackupService(servicePath, backupDir)
		if err != nil {
			return "", fmt.Errorf("failed to snapshot current service file before restore: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(servicePath), 0o755); err != nil {
		return previous, fmt.Errorf("failed to create service directory: %w", err)
	}
	if err := os.WriteFile(servicePath, data, 0o644); err != nil {
		return previous, fmt.Errorf("failed to restore service file %s: %w", servicePath, err)
	}
	return previous, nil
}

// CleanOldBackups keeps only the keepCount newest backups for
// serviceName, deleting the rest.
func CleanOldBackups(backupDir, serviceName string, keepCount int) (int, error) {
	if keepCount < 0 {
		return 0, fmt.Errorf("keepCount must be non-negative")
	}
	backups, err := ListBackups(backupDir, serviceName)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keepCount {
		return 0, nil
	}
	deleted := 0
	for _, b := range backups[keepCount:] {
		if err := os.Remove(b.Path); err != nil {
			continue
		}
		deleted++
	}
	return deleted, nil
}

func parseBackupTimestamp(filename string) (time.Time, error) {
	name := strings.TrimSuffix(filename, BackupSuffix)
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("invalid backup filename format: %s", filename)
	}
	ts := parts[len(parts)-1]
	// A millisecond timestamp has a dot of its own, so it spans the
	// last two parts.
	candidates := []string{ts}
	if len(parts) >= 3 {
		candidates = append(candidates, parts[len(parts)-2]+"."+ts)
	}
	for _, c := range candidates {
		for _, layout := range []string{BackupTimestampFormat, "2006-01-02T15-04-05.000"} {
			if t, err := time.Parse(layout, c); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp format: %s", ts)
}
