package scan

import (
	"encoding/json"
	"fmt"
	"os"

	"go.etcd.io/bbolt"

	"github.com/zombor/invoice-anomaly/internal/invoice"
)

// Snapshot is the seed file format used to populate a store
type Snapshot struct {
	Tenants []TenantSnapshot `json:"tenants"`
}

// TenantSnapshot holds one tenant's members, vendor names and invoices
type TenantSnapshot struct {
	ID          string                      `json:"id"`
	Members     []string                    `json:"members"`
	Vendors     map[string]string           `json:"vendors"`
	Receivables []invoice.ReceivableInvoice `json:"receivables"`
	Payables    []invoice.PayableInvoice    `json:"payables"`
}

// LoadSnapshot reads a seed snapshot from a JSON file
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return &snapshot, nil
}

// Import writes the snapshot in one transaction. Existing records with the
// same ids are overwritten; nothing is written if any record is invalid.
func (b *BoltDB) Import(snapshot *Snapshot) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, tenant := range snapshot.Tenants {
			if tenant.ID == "" {
				return fmt.Errorf("tenant id is required")
			}
			if err := importTenant(tx, &tenant); err != nil {
				return fmt.Errorf("importing tenant %s: %w", tenant.ID, err)
			}
		}
		return nil
	})
}

func importTenant(tx *bbolt.Tx, tenant *TenantSnapshot) error {
	bucket := func(name string) (*bbolt.Bucket, error) {
		return tx.Bucket([]byte(name)).CreateBucketIfNotExists([]byte(tenant.ID))
	}

	members, err := bucket(memberBucketName)
	if err != nil {
		return err
	}
	for _, userID := range tenant.Members {
		if err := members.Put([]byte(userID), []byte{1}); err != nil {
			return fmt.Errorf("saving member: %w", err)
		}
	}

	vendors, err := bucket(vendorBucketName)
	if err != nil {
		return err
	}
	for id, name := range tenant.Vendors {
		if err := vendors.Put([]byte(id), []byte(name)); err != nil {
			return fmt.Errorf("saving vendor: %w", err)
		}
	}

	receivables, err := bucket(receivableBucketName)
	if err != nil {
		return err
	}
	for _, inv := range tenant.Receivables {
		if err := putJSON(receivables, inv.ID, inv); err != nil {
			return fmt.Errorf("saving receivable: %w", err)
		}
	}

	payables, err := bucket(payableBucketName)
	if err != nil {
		return err
	}
	for _, bill := range tenant.Payables {
		if err := putJSON(payables, bill.ID, bill); err != nil {
			return fmt.Errorf("saving payable: %w", err)
		}
	}
	return nil
}

func putJSON(bucket *bbolt.Bucket, id string, v any) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", id, err)
	}
	return bucket.Put([]byte(id), data)
}
