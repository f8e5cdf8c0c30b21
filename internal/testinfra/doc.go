// Package testinfra starts the containers used by integration tests.
//
// QuestDB and Mosquitto run under testcontainers-go so the ingest path can
// be exercised against the real services:
//
//	func TestSomething(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    qdb, err := testinfra.NewQuestDBContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, qdb)
//	    // qdb.Config() is ready for questdb.New
//	}
//
// All files except this one carry the integration build tag. Run with:
//
//	go test -tags=integration ./...
package testinfra
