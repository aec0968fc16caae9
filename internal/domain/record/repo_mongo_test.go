package record

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

func TestRecordDoc_BSONRoundTrip(t *testing.T) {
	in := &Expediente{
		ID:            "e1",
		PacienteUID:   "p1",
		TerapeutaUID:  "t1",
		Descripcion:   "Expediente inicial",
		Diagnostico:   optional.Some("Cervicalgia"),
		FechaCreacion: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := bson.Marshal(toRecordDoc(in))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw bson.M
	bson.Unmarshal(data, &raw)
	if _, ok := raw["objetivos"]; ok {
		t.Error("absent field must not be stored")
	}
	if raw["_id"] != "e1" || raw["pacienteUid"] != "p1" {
		t.Errorf("unexpected document %v", raw)
	}

	var d recordDoc
	if err := bson.Unmarshal(data, &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out := d.toRecord()
	if optional.String(out.Diagnostico) != "Cervicalgia" || out.Objetivos.IsSet() || !out.FechaCreacion.Equal(in.FechaCreacion) {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
