package dmi

import "testing"

const sampleOutput = `Memory Device
	Array Handle: 0x0003
	Locator: ChannelA-DIMM1
	Serial Number: 395C99B0

Memory Device
	Array Handle: 0x0003
	Locator: ChannelB-DIMM1
	Serial Number: Not Specified
`

func TestParseMemoryDevices(t *testing.T) {
	devices := parseMemoryDevices(sampleOutput)

	if len(devices) != 1 {
		t.Fatalf("expected 1 populated device, got %d: %+v", len(devices), devices)
	}
	if devices[0].Slot != 2 {
		t.Fatalf("expected ChannelA-DIMM1 to map to slot 2, got %d", devices[0].Slot)
	}
	if devices[0].SerialNumber != "395C99B0" {
		t.Fatalf("unexpected serial number: %s", devices[0].SerialNumber)
	}
}

func TestParseSerialNumberDDR3Reorder(t *testing.T) {
	got, err := ParseSerialNumber("0AB0CD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0xCDAB" {
		t.Fatalf("expected reversed byte-pair order 0xCDAB, got %q", got)
	}
}

func TestParseSerialNumberDDR4PassThrough(t *testing.T) {
	got, err := ParseSerialNumber("ABCDEF12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0xABCDEF12" {
		t.Fatalf("expected passthrough with 0x prefix, got %q", got)
	}
}

func TestParseSerialNumberRejectsUnknown(t *testing.T) {
	if _, err := ParseSerialNumber("Unknown"); err == nil {
		t.Fatalf("expected an error for 'Unknown'")
	}
	if _, err := ParseSerialNumber("SerNum0"); err == nil {
		t.Fatalf("expected an error for a SerNum placeholder")
	}
}

func TestResolveDIMMs(t *testing.T) {
	devices := []Device{{Slot: 0, SerialNumber: "ABCDEF12"}}
	dimmIDs := map[string]string{"0xABCDEF12": "4S9"}

	dimms, err := ResolveDIMMs(devices, dimmIDs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dimms) != 4 || dimms[0] != "4S9" {
		t.Fatalf("unexpected result: %+v", dimms)
	}
}

func TestResolveDIMMsMissingID(t *testing.T) {
	devices := []Device{{Slot: 0, SerialNumber: "ABCDEF12"}}

	if _, err := ResolveDIMMs(devices, map[string]string{}); err == nil {
		t.Fatalf("expected an error for a DIMM with no configured module name")
	}
}
