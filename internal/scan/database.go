package scan

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/invoice-anomaly/internal/invoice"
)

const (
	receivableBucketName = "receivables"
	payableBucketName    = "payables"
	vendorBucketName     = "vendors"
	memberBucketName     = "members"
	auditBucketName      = "audit_log"
)

var topBuckets = []string{
	receivableBucketName,
	payableBucketName,
	vendorBucketName,
	memberBucketName,
	auditBucketName,
}

// InvoiceSource provides the per-tenant invoice snapshot
type InvoiceSource interface {
	// ListReceivables returns customer invoices dated on or after since
	ListReceivables(tenantID string, since time.Time) ([]invoice.ReceivableInvoice, error)

	// ListPayables returns supplier bills dated on or after since
	ListPayables(tenantID string, since time.Time) ([]invoice.PayableInvoice, error)

	// VendorNames looks up display names for the given vendor ids in one read
	VendorNames(tenantID string, ids []string) (map[string]string, error)
}

// Membership checks whether a user belongs to a tenant
type Membership interface {
	IsMember(tenantID, userID string) (bool, error)
}

// AuditLog stores scan audit entries
type AuditLog interface {
	// AppendAudit adds an entry to the tenant's log
	AppendAudit(entry *AuditEntry) error

	// ListAudit returns a tenant's entries, oldest first
	ListAudit(tenantID string) ([]*AuditEntry, error)
}

// DB defines the interface for database operations
type DB interface {
	InvoiceSource
	Membership
	AuditLog

	// Import loads a seed snapshot
	Import(snapshot *Snapshot) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB.
// Every top level bucket holds one nested bucket per tenant.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range topBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// tenantBucket returns the tenant's nested bucket, or nil if the tenant
// has no data yet
func tenantBucket(tx *bbolt.Tx, name, tenantID string) *bbolt.Bucket {
	return tx.Bucket([]byte(name)).Bucket([]byte(tenantID))
}

// ListReceivables returns customer invoices dated on or after since, in key order
func (b *BoltDB) ListReceivables(tenantID string, since time.Time) ([]invoice.ReceivableInvoice, error) {
	invoices := make([]invoice.ReceivableInvoice, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tenantBucket(tx, receivableBucketName, tenantID)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var inv invoice.ReceivableInvoice
			if err := json.Unmarshal(v, &inv); err != nil {
				return fmt.Errorf("unmarshaling receivable %s: %w", k, err)
			}
			if inv.InvoiceDate.Before(since) {
				return nil
			}
			invoices = append(invoices, inv)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// ListPayables returns supplier bills dated on or after since, in key order
func (b *BoltDB) ListPayables(tenantID string, since time.Time) ([]invoice.PayableInvoice, error) {
	bills := make([]invoice.PayableInvoice, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tenantBucket(tx, payableBucketName, tenantID)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var bill invoice.PayableInvoice
			if err := json.Unmarshal(v, &bill); err != nil {
				return fmt.Errorf("unmarshaling payable %s: %w", k, err)
			}
			if bill.BillDate.Before(since) {
				return nil
			}
			bills = append(bills, bill)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// VendorNames returns the known names for ids. Unknown ids are omitted.
func (b *BoltDB) VendorNames(tenantID string, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tenantBucket(tx, vendorBucketName, tenantID)
		if bucket == nil {
			return nil
		}
		for _, id := range ids {
			if name := bucket.Get([]byte(id)); name != nil {
				names[id] = string(name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// IsMember reports whether userID belongs to tenantID
func (b *BoltDB) IsMember(tenantID, userID string) (bool, error) {
	var member bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tenantBucket(tx, memberBucketName, tenantID)
		if bucket == nil {
			return nil
		}
		member = bucket.Get([]byte(userID)) != nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return member, nil
}

// AppendAudit stores entry under the next sequence number of its tenant
func (b *BoltDB) AppendAudit(entry *AuditEntry) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket([]byte(auditBucketName)).CreateBucketIfNotExists([]byte(entry.TenantID))
		if err != nil {
			return fmt.Errorf("creating audit bucket: %w", err)
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating audit sequence: %w", err)
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling audit entry: %w", err)
		}
		return bucket.Put(sequenceKey(seq), data)
	})
}

// ListAudit returns all audit entries for a tenant, oldest first
func (b *BoltDB) ListAudit(tenantID string) ([]*AuditEntry, error) {
	entries := make([]*AuditEntry, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tenantBucket(tx, auditBucketName, tenantID)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var entry AuditEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling audit entry: %w", err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// sequenceKey encodes seq big-endian so keys sort chronologically
func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
