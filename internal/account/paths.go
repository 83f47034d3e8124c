package account

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.tgd.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tgd")
}

// Dir returns the account-specific store root.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "accounts", name)
}

// SocketPath returns the IPC socket path for an account. The socket file
// exists only while a daemon is running for the account.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for an account.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// SessionPath returns the transport session state path. Its contents are
// opaque to tgd and owned by the remote-protocol client.
func SessionPath(name string) string {
	return filepath.Join(Dir(name), "session")
}

// DBPath returns the archive database path for an account.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "tgd.db")
}

// MediaDir returns the media download directory for an account.
func MediaDir(name string) string {
	return filepath.Join(Dir(name), "media")
}

// LogDir returns the log directory for an account.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "tgd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the account directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
		MediaDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
