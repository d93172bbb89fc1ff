package shared

import "fmt"

// ReorderLockKey names the advisory lock serialising reorder draft generation.
func ReorderLockKey() string {
	return "orders:reorder-drafts:lock"
}

// CountLockKey names the advisory lock held while a stock count is finalised.
func CountLockKey(countID int64) string {
	return fmt.Sprintf("stocktake:count:%d:lock", countID)
}
