package tokenstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/felixgeelhaar/hangar/internal/errors"
)

const fileFormatVersion = 1

// fileRecord is the on-disk layout. When Encrypted is set, Access and
// Refresh hold base64 AES-GCM ciphertext and Salt the key derivation salt.
type fileRecord struct {
	Version   int       `json:"version"`
	Encrypted bool      `json:"encrypted"`
	Salt      string    `json:"salt,omitempty"`
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
	UpdatedAt time.Time `json:"updated_at"`
}

// File stores the pair as a JSON document readable only by the owner.
// Each write goes to a temporary sibling file that is renamed over the
// target, so the pair on disk always comes from a single write.
type File struct {
	mu         sync.Mutex
	path       string
	passphrase string
	sealer     *sealer
	attrs      Attributes
}

// NewFile opens a file-backed store at path. A non-empty passphrase
// encrypts the tokens at rest.
func NewFile(path, passphrase string, attrs Attributes) (*File, error) {
	f := &File{path: path, passphrase: passphrase, attrs: attrs}

	rec, err := f.read()
	if err != nil {
		return nil, err
	}

	if rec != nil && rec.Encrypted && passphrase == "" {
		return nil, errors.New(errors.ErrCodeStoreCrypt, fmt.Sprintf("token file %s is encrypted but no passphrase was provided", path)).
			WithSuggestion("Export the variable named by tokens.passphrase_env").
			WithSuggestion("Run 'hangar auth logout' to discard the stored tokens")
	}

	if passphrase != "" {
		salt, err := f.saltFor(rec)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreCrypt, "failed to prepare token encryption", err)
		}
		if f.sealer, err = newSealer(passphrase, salt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreCrypt, "failed to prepare token encryption", err)
		}
	}

	return f, nil
}

func (f *File) saltFor(rec *fileRecord) ([]byte, error) {
	if rec != nil && rec.Encrypted && rec.Salt != "" {
		return base64.StdEncoding.DecodeString(rec.Salt)
	}
	return newSalt()
}

// Path returns the location of the token file
func (f *File) Path() string { return f.path }

// Get implements Store
func (f *File) Get(ctx context.Context) (Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

// Set implements Store
func (f *File) Set(ctx context.Context, p Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(p)
}

// SetAccess implements Store
func (f *File) SetAccess(ctx context.Context, access string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.load()
	if err != nil {
		return err
	}
	p.Access = access
	return f.save(p)
}

// Clear implements Store
func (f *File) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.NewStoreWriteError(f.Name(), err)
	}
	return nil
}

// Attributes implements Store
func (f *File) Attributes() Attributes { return f.attrs }

// Name implements Store
func (f *File) Name() string { return "file" }

// Close implements Store
func (f *File) Close() error { return nil }

func (f *File) read() (*fileRecord, error) {
	data, err := os.ReadFile(f.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreReadError(f.Name(), err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.NewStoreReadError(f.Name(), fmt.Errorf("parse %s: %w", f.path, err))
	}
	if rec.Version != fileFormatVersion {
		return nil, errors.NewStoreReadError(f.Name(), fmt.Errorf("unsupported token file version %d", rec.Version))
	}
	return &rec, nil
}

func (f *File) load() (Pair, error) {
	rec, err := f.read()
	if err != nil || rec == nil {
		return Pair{}, err
	}

	if !rec.Encrypted {
		return Pair{Access: rec.Access, Refresh: rec.Refresh}, nil
	}

	access, err := f.sealer.open(rec.Access)
	if err != nil {
		return Pair{}, errors.Wrap(errors.ErrCodeStoreCrypt, "failed to decrypt access token", err).
			WithSuggestion("Check the passphrase in the variable named by tokens.passphrase_env")
	}
	refresh, err := f.sealer.open(rec.Refresh)
	if err != nil {
		return Pair{}, errors.Wrap(errors.ErrCodeStoreCrypt, "failed to decrypt refresh token", err).
			WithSuggestion("Check the passphrase in the variable named by tokens.passphrase_env")
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

func (f *File) save(p Pair) error {
	rec := fileRecord{
		Version:   fileFormatVersion,
		Access:    p.Access,
		Refresh:   p.Refresh,
		UpdatedAt: time.Now().UTC(),
	}

	if f.sealer != nil {
		var err error
		rec.Encrypted = true
		rec.Salt = base64.StdEncoding.EncodeToString(f.sealer.salt)
		if rec.Access, err = f.sealer.seal(p.Access); err != nil {
			return errors.Wrap(errors.ErrCodeStoreCrypt, "failed to encrypt access token", err)
		}
		if rec.Refresh, err = f.sealer.seal(p.Refresh); err != nil {
			return errors.Wrap(errors.ErrCodeStoreCrypt, "failed to encrypt refresh token", err)
		}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.NewStoreWriteError(f.Name(), err)
	}

	if err := writeFileAtomic(f.path, data); err != nil {
		return errors.NewStoreWriteError(f.Name(), err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
