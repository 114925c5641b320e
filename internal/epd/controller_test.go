package epd

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type record struct {
	cmd  byte
	data []byte
	wait bool
}

type fakeController []record

func (r *fakeController) sendCommand(cmd byte) {
	*r = append(*r, record{
		cmd: cmd,
	})
}

func (r *fakeController) sendData(data ...byte) {
	cur := &(*r)[len(*r)-1]
	cur.data = append(cur.data, data...)
}

func (r *fakeController) waitUntilIdle() {
	cur := &(*r)[len(*r)-1]
	cur.wait = true
}

func diffRecords(got, want []record) string {
	return cmp.Diff(got, want, cmpopts.EquateEmpty(), cmp.AllowUnexported(record{}))
}

func TestInitPanel(t *testing.T) {
	for _, tc := range []struct {
		name string
		geom Geometry
		lut  LUT
		want []record
	}{
		{
			name: "epd2in13bc",
			geom: EPD2in13bc.Geometry,
			lut:  FullUpdateLUT,
			want: []record{
				{cmd: boosterSoftStart, data: []byte{0x17, 0x17, 0x17}},
				{cmd: powerOn, wait: true},
				{cmd: panelSetting, data: []byte{0x8F}},
				{cmd: vcomAndDataIntervalSetup, data: []byte{0xF0}},
				{cmd: resolutionSetting, data: []byte{104, 0x00, 212}},
				{cmd: writeLUTRegister, data: FullUpdateLUT},
			},
		},
		{
			name: "tall panel, partial lut",
			geom: Geometry{Width: 200, Height: 300},
			lut:  PartialUpdateLUT,
			want: []record{
				{cmd: boosterSoftStart, data: []byte{0x17, 0x17, 0x17}},
				{cmd: powerOn, wait: true},
				{cmd: panelSetting, data: []byte{0x8F}},
				{cmd: vcomAndDataIntervalSetup, data: []byte{0xF0}},
				{cmd: resolutionSetting, data: []byte{200, 0x01, 0x2C}},
				{cmd: writeLUTRegister, data: PartialUpdateLUT},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var got fakeController

			initPanel(&got, tc.geom, tc.lut)

			if diff := diffRecords(got, tc.want); diff != "" {
				t.Errorf("initPanel() difference (-got +want):\n%s", diff)
			}
		})
	}
}

func TestSendPlanes(t *testing.T) {
	black := bytes.Repeat([]byte{'B'}, 4)
	red := bytes.Repeat([]byte{'R'}, 4)

	for _, tc := range []struct {
		name       string
		black, red []byte
		want       []record
	}{
		{
			name:  "mono",
			black: black,
			want: []record{
				{cmd: dataStartBlack, data: black},
				{cmd: dataStop},
				{cmd: displayRefresh, wait: true},
			},
		},
		{
			name:  "black and red",
			black: black,
			red:   red,
			want: []record{
				{cmd: dataStartBlack, data: black},
				{cmd: dataStop},
				{cmd: dataStartRed, data: red},
				{cmd: dataStop},
				{cmd: displayRefresh, wait: true},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var got fakeController

			sendPlanes(&got, tc.black, tc.red)

			if diff := diffRecords(got, tc.want); diff != "" {
				t.Errorf("sendPlanes() difference (-got +want):\n%s", diff)
			}
		})
	}
}

func TestPowerDown(t *testing.T) {
	var got fakeController

	powerDown(&got)

	want := []record{
		{cmd: powerOff, wait: true},
		{cmd: deepSleep, data: []byte{0xA5}},
	}
	if diff := diffRecords(got, want); diff != "" {
		t.Errorf("powerDown() difference (-got +want):\n%s", diff)
	}
}
