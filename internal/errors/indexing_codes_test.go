package errors

import "testing"

func TestAmanError_NewIndexingCodes_Category(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeStateFileRead, CategoryIO},
		{ErrCodeStateFileWrite, CategoryIO},
		{ErrCodeStorageTimeout, CategoryNetwork},
		{ErrCodeParseFailed, CategoryInternal},
		{ErrCodeStorageFailed, CategoryInternal},
		{ErrCodeOrphanSweepFailed, CategoryInternal},
		{ErrCodeCollectionMissing, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			if err.Category != tt.wantCategory {
				t.Errorf("category for %s = %v, want %v", tt.code, err.Category, tt.wantCategory)
			}
		})
	}
}

func TestAmanError_StorageTimeout_IsRetryable(t *testing.T) {
	err := New(ErrCodeStorageTimeout, "storage call timed out", nil)
	if !err.Retryable {
		t.Error("expected ERR_304_STORAGE_TIMEOUT to be retryable")
	}
	if err.Severity != SeverityWarning {
		t.Errorf("expected retryable code to get warning severity, got %v", err.Severity)
	}
}

func TestAmanError_ParseAndOrphanSweepFailed_NotRetryable(t *testing.T) {
	for _, code := range []string{ErrCodeParseFailed, ErrCodeOrphanSweepFailed, ErrCodeCollectionMissing} {
		err := New(code, "test message", nil)
		if err.Retryable {
			t.Errorf("expected %s to not be retryable", code)
		}
	}
}
