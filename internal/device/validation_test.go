package device

import (
	"errors"
	"strings"
	"testing"
)

func validDevice() *Device {
	return &Device{
		SerialNumber: "SN-TEST-001",
		Category:     CategoryLaptop,
		Model:        "ThinkPad T14",
		PurchaseCost: 850000,
	}
}

func TestValidateDevice(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Device)
		wantErr error
	}{
		{"valid minimal device", func(d *Device) {}, nil},
		{"valid with status and condition", func(d *Device) {
			d.Status = StatusMaintenance
			d.Condition = ConditionFair
		}, nil},
		{"empty serial", func(d *Device) { d.SerialNumber = "  " }, ErrInvalidSerial},
		{"serial too long", func(d *Device) {
			d.SerialNumber = strings.Repeat("A", maxSerialLength+1)
		}, ErrInvalidSerial},
		{"empty model", func(d *Device) { d.Model = "" }, ErrInvalidModel},
		{"model too long", func(d *Device) {
			d.Model = strings.Repeat("m", maxModelLength+1)
		}, ErrInvalidModel},
		{"manufacturer too long", func(d *Device) {
			d.Manufacturer = strings.Repeat("m", maxManufacturerLength+1)
		}, ErrInvalidModel},
		{"negative cost", func(d *Device) { d.PurchaseCost = -1 }, ErrInvalidCost},
		{"zero cost allowed", func(d *Device) { d.PurchaseCost = 0 }, nil},
		{"unknown category", func(d *Device) { d.Category = "tablet" }, ErrInvalidCategory},
		{"empty category", func(d *Device) { d.Category = "" }, ErrInvalidCategory},
		{"unknown status", func(d *Device) { d.Status = "retired" }, ErrInvalidStatus},
		{"unknown condition", func(d *Device) { d.Condition = "mint" }, ErrInvalidCondition},
		{"oversized specification value", func(d *Device) {
			d.Specification = map[string]any{"notes": strings.Repeat("x", maxStringValueLen+1)}
		}, ErrInvalidDevice},
		{"too many maintenance records", func(d *Device) {
			d.MaintenanceRecords = make([]MaintenanceRecord, maxMaintenanceRecords+1)
		}, ErrInvalidDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDevice()
			tt.mutate(d)
			err := ValidateDevice(d)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDevice() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDevice_Nil(t *testing.T) {
	if err := ValidateDevice(nil); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("ValidateDevice(nil) error = %v, want ErrInvalidDevice", err)
	}
}

func TestValidEnumHelpers(t *testing.T) {
	if !ValidCategory(CategoryOther) || ValidCategory("phone") {
		t.Error("ValidCategory misclassified")
	}
	if !ValidStatus(StatusDisposed) || ValidStatus("scrapped") {
		t.Error("ValidStatus misclassified")
	}
	if !ValidCondition(ConditionBroken) || ValidCondition("pristine") {
		t.Error("ValidCondition misclassified")
	}
}
