package bill

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const uploadBucketName = "uploads"

var (
	// ErrUploadNotFound is returned for unknown upload IDs.
	ErrUploadNotFound = errors.New("upload not found")
	// ErrUploadExpired is returned when an upload's retention window has
	// passed. The entry is deleted on access.
	ErrUploadExpired = errors.New("upload expired")
)

// Registry defines the interface for the expiring upload store.
type Registry interface {
	// SaveUpload stores a processed upload until its expiry.
	SaveUpload(upload *Upload) error

	// GetUpload retrieves an upload by ID. Expired uploads are deleted
	// and reported as ErrUploadExpired.
	GetUpload(id string) (*Upload, error)

	// DeleteUpload removes an upload.
	DeleteUpload(id string) error

	// SweepExpired deletes every expired upload and reports how many
	// were removed.
	SweepExpired() (int, error)

	// Close closes the registry.
	Close() error
}

// BoltRegistry implements Registry on bbolt. Values are AES-256-GCM
// encrypted with a key generated at startup and held only in memory, so
// stored documents are unreadable once the process exits.
type BoltRegistry struct {
	db   *bbolt.DB
	aead cipher.AEAD
	now  func() time.Time
}

// NewBoltRegistry opens (or creates) the registry database and generates
// a fresh encryption key.
func NewBoltRegistry(path string) (*BoltRegistry, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening registry db: %w", err)
	}

	// Entries written by a previous process are undecryptable with the
	// fresh key; start from an empty bucket.
	err = db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(uploadBucketName)) != nil {
			if err := tx.DeleteBucket([]byte(uploadBucketName)); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket([]byte(uploadBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("resetting bucket: %w", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		db.Close()
		return nil, fmt.Errorf("generating encryption key: %w", err)
	}
	aead, err := newAEAD(key)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltRegistry{
		db:   db,
		aead: aead,
		now:  time.Now,
	}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aead, nil
}

// SaveUpload stores an encrypted upload record.
func (r *BoltRegistry) SaveUpload(upload *Upload) error {
	plaintext, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("marshaling upload: %w", err)
	}

	nonce := make([]byte, r.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sealed := r.aead.Seal(nonce, nonce, plaintext, nil)

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(uploadBucketName))
		return bucket.Put([]byte(upload.ID), sealed)
	})
}

// GetUpload retrieves and decrypts an upload, deleting it when expired.
func (r *BoltRegistry) GetUpload(id string) (*Upload, error) {
	var sealed []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(uploadBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrUploadNotFound
		}
		sealed = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	upload, err := r.open(sealed)
	if err != nil {
		return nil, err
	}

	if upload.ExpiresAt.Before(r.now()) {
		if err := r.DeleteUpload(id); err != nil {
			return nil, fmt.Errorf("deleting expired upload: %w", err)
		}
		return nil, ErrUploadExpired
	}

	return upload, nil
}

func (r *BoltRegistry) open(sealed []byte) (*Upload, error) {
	if len(sealed) < r.aead.NonceSize() {
		return nil, fmt.Errorf("sealed upload too short")
	}
	nonce, ciphertext := sealed[:r.aead.NonceSize()], sealed[r.aead.NonceSize():]
	plaintext, err := r.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting upload: %w", err)
	}

	var upload Upload
	if err := json.Unmarshal(plaintext, &upload); err != nil {
		return nil, fmt.Errorf("unmarshaling upload: %w", err)
	}
	return &upload, nil
}

// DeleteUpload removes an upload record.
func (r *BoltRegistry) DeleteUpload(id string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(uploadBucketName))
		return bucket.Delete([]byte(id))
	})
}

// SweepExpired deletes every upload past its expiry in one transaction.
func (r *BoltRegistry) SweepExpired() (int, error) {
	now := r.now()
	removed := 0
	err := r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(uploadBucketName))
		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			upload, err := r.open(v)
			if err != nil {
				// Undecryptable entries are garbage from a previous
				// key; sweep them too.
				expired = append(expired, append([]byte(nil), k...))
				return nil
			}
			if upload.ExpiresAt.Before(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range expired {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Close closes the registry database.
func (r *BoltRegistry) Close() error {
	return r.db.Close()
}
