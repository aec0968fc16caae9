package progress

import (
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestAvanceDoc_BSONRoundTrip(t *testing.T) {
	in := &Avance{
		ID:            "a1",
		PacienteUID:   "p1",
		TerapeutaUID:  "t1",
		ExpedienteID:  "e1",
		FechaRegistro: time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC),
		RegistradoPor: "p1",
		TipoRegistro:  TipoAuto,
		Payload:       validPayload(),
	}
	data, err := bson.Marshal(toAvanceDoc(in))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var d avanceDoc
	if err := bson.Unmarshal(data, &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out := d.toAvance()
	out.FechaRegistro = out.FechaRegistro.UTC()
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}
