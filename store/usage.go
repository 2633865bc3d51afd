package store

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ziyixi/slotify/slot"
)

// ===== Allocation ledger =====

// ListSlots returns every allocation, newest usage first. Windowing is the
// aggregator's job; audit views need the expired rows too.
func (s *Storage) ListSlots() ([]Slot, error) {
	var slots []Slot
	if err := s.db.Order("used_at DESC").Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

// ListSlotsForPhone returns all allocations referencing one phone.
func (s *Storage) ListSlotsForPhone(phoneID string) ([]Slot, error) {
	var slots []Slot
	if err := s.db.Where("phone_id = ?", phoneID).Order("used_at DESC").Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

// ListSlotsForIP returns all allocations referencing one IP.
func (s *Storage) ListSlotsForIP(ipID string) ([]Slot, error) {
	var slots []Slot
	if err := s.db.Where("ip_id = ?", ipID).Order("used_at DESC").Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

// GetSlot fetches one allocation by id.
func (s *Storage) GetSlot(id string) (*Slot, error) {
	var sl Slot
	if err := s.db.First(&sl, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &sl, nil
}

// DeleteSlot removes an allocation unconditionally; freeing capacity never
// needs an admission check.
func (s *Storage) DeleteSlot(id string) error {
	res := s.db.Delete(&Slot{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ===== Usage aggregator =====

// usageQuery sums allocation units for one resource column within the policy
// window around ref. Legacy rows with a NULL count weigh 1. Always recomputed
// from the ledger; usage is never cached on the resource.
func (s *Storage) usageQuery(tx *gorm.DB, column, id string, ref time.Time) (int, error) {
	cutoff := s.policy.CutoffDate(ref)
	upper := s.policy.UpperBound(ref)

	var total int
	err := tx.Model(&Slot{}).
		Select("COALESCE(SUM(COALESCE(count, 1)), 0)").
		Where(column+" = ? AND used_at >= ? AND used_at < ?", id, cutoff, upper).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// PhoneUsage returns the phone's summed allocation units within the window as
// of ref. Unknown phones return ErrNotFound.
func (s *Storage) PhoneUsage(phoneID string, ref time.Time) (int, error) {
	if _, err := s.GetPhone(phoneID); err != nil {
		return 0, err
	}
	return s.usageQuery(s.db, "phone_id", phoneID, ref)
}

// IPUsage returns the IP's summed allocation units within the window as of
// ref. Unknown IPs return ErrNotFound.
func (s *Storage) IPUsage(ipID string, ref time.Time) (int, error) {
	if _, err := s.GetIP(ipID); err != nil {
		return 0, err
	}
	return s.usageQuery(s.db, "ip_id", ipID, ref)
}

// ===== Admission =====

// AllocateSlot is the only write path into the ledger. It validates the
// request, then runs check-and-insert in one transaction so two concurrent
// requests against the same resource cannot both read a sub-limit usage and
// both commit. On Postgres the resource row is locked FOR UPDATE; on SQLite
// the transaction's write lock serializes the pair.
func (s *Storage) AllocateSlot(req slot.Request) (*Slot, error) {
	if err := req.Validate(s.policy); err != nil {
		return nil, err
	}

	var created *Slot
	err := s.db.Transaction(func(tx *gorm.DB) error {
		locked := tx
		if tx.Dialector.Name() == "postgres" {
			locked = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		record := Slot{Count: &req.Count, UsedAt: req.UsedAt}

		var resource, column, id string
		if req.PhoneID != "" {
			resource, column, id = "Phone", "phone_id", req.PhoneID
			if err := locked.First(&Phone{}, "id = ?", id).Error; err != nil {
				return translate(err)
			}
			record.PhoneID = &req.PhoneID
		} else {
			resource, column, id = "IP", "ip_id", req.IPID
			if err := locked.First(&IP{}, "id = ?", id).Error; err != nil {
				return translate(err)
			}
			record.IPID = &req.IPID
		}

		// Usage is evaluated as of the allocation's own date, so backdated
		// entries are admitted against the window they actually land in.
		usage, err := s.usageQuery(tx, column, id, req.UsedAt)
		if err != nil {
			return err
		}
		if err := s.policy.Admit(resource, usage, req.Count); err != nil {
			return err
		}

		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		created = &record
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Allocated %d unit(s) against %s", req.Count, allocTarget(created))
	return created, nil
}

func allocTarget(sl *Slot) string {
	if sl.PhoneID != nil {
		return "phone " + *sl.PhoneID
	}
	if sl.IPID != nil {
		return "ip " + *sl.IPID
	}
	return "unknown resource"
}
