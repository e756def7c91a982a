package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	CollectionChats = "chats"
	CollectionCalls = "calls"
)

// FirestoreSignal keeps call records in Cloud Firestore under
// chats/{matchId}/calls/{callId}.
type FirestoreSignal struct {
	app            *firebase.App
	firebaseClient *firestore.Client
	logger         *zap.Logger
	ctx            context.Context
}

// CreateFirestoreSignal connects with the credentials found in the
// environment, see GetFirebaseConfiguration. Extra options are appended.
func CreateFirestoreSignal(ctx context.Context, logger *zap.Logger, options ...option.ClientOption) (*FirestoreSignal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config, credentials, err := GetFirebaseConfiguration()
	if err != nil {
		return nil, err
	}

	app, err := firebase.NewApp(ctx, config, append(credentials, options...)...)
	if err != nil {
		return nil, fmt.Errorf("error while creating firebase app: %w", err)
	}

	firebaseClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error while creating firestore client: %w", err)
	}

	return &FirestoreSignal{
		app:            app,
		firebaseClient: firebaseClient,
		logger:         logger.Named("signal.firestore"),
		ctx:            ctx,
	}, nil
}

func (signal *FirestoreSignal) calls(matchID string) *firestore.CollectionRef {
	return signal.firebaseClient.Collection(CollectionChats).Doc(matchID).Collection(CollectionCalls)
}

func (signal *FirestoreSignal) Channel(matchID, callID string, role Role) *FirestoreChannel {
	return &FirestoreChannel{
		signal: signal,
		docRef: signal.calls(matchID).Doc(callID),
		callID: callID,
		role:   role,
		logger: signal.logger.With(zap.String("match_id", matchID), zap.String("call_id", callID), zap.Stringer("role", role)),
	}
}

// ChannelFactory binds channels to the calls of matchID.
func (signal *FirestoreSignal) ChannelFactory(matchID string) ChannelFactory {
	return func(callID string, role Role) (SignalingChannel, error) {
		if matchID == "" || callID == "" {
			return nil, fmt.Errorf("match id and call id are required")
		}
		return signal.Channel(matchID, callID, role), nil
	}
}

func (signal *FirestoreSignal) Watcher(matchID string) *FirestoreWatcher {
	return &FirestoreWatcher{
		signal: signal,
		calls:  signal.calls(matchID),
		logger: signal.logger.With(zap.String("match_id", matchID)),
	}
}

func (signal *FirestoreSignal) Close() error {
	if err := signal.firebaseClient.Close(); err != nil {
		signal.logger.Warn("failed to close firestore client", zap.Error(err))
		return err
	}
	return nil
}

// FirestoreChannel is a SignalingChannel on one call document.
type FirestoreChannel struct {
	signal *FirestoreSignal
	docRef *firestore.DocumentRef
	callID string
	role   Role
	logger *zap.Logger
}

// Send merge-updates the document. Candidates are also appended to the
// sender's candidate list, so none is lost to a later write.
func (c *FirestoreChannel) Send(ctx context.Context, msg Message) error {
	if _, err := c.docRef.Set(ctx, messageData(c.role, msg), firestore.MergeAll); err != nil {
		return fmt.Errorf("error while setting data to firestore: %w", err)
	}
	return nil
}

func messageData(role Role, msg Message) map[string]interface{} {
	data := map[string]interface{}{
		FieldType:      string(msg.Type),
		FieldUpdatedAt: firestore.ServerTimestamp,
	}

	if msg.Offer != nil {
		offer := map[string]interface{}{
			FieldCallerID: msg.Offer.CallerID,
		}
		if msg.Offer.SDP != "" {
			offer[FieldSDP] = msg.Offer.SDP
			offer[FieldSDPType] = msg.Offer.Type
		}
		if msg.Offer.Timestamp.IsZero() {
			offer[FieldTimestamp] = firestore.ServerTimestamp
		} else {
			offer[FieldTimestamp] = msg.Offer.Timestamp
		}
		data[FieldOffer] = offer
	}

	if msg.Answer != nil {
		data[FieldAnswer] = map[string]interface{}{
			FieldSDP:     msg.Answer.SDP,
			FieldSDPType: msg.Answer.Type,
		}
	}

	if msg.Candidate != nil {
		candidate := candidateData(*msg.Candidate)
		data[FieldCandidate] = candidate
		data[role.CandidatesField()] = firestore.ArrayUnion(candidate)
	}

	if msg.DeclinedBy != "" {
		data[FieldDeclinedBy] = msg.DeclinedBy
	}

	return data
}

func candidateData(c Candidate) map[string]interface{} {
	data := map[string]interface{}{
		"candidate": c.Candidate,
	}
	if c.SDPMid != nil {
		data["sdpMid"] = *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		data["sdpMLineIndex"] = int64(*c.SDPMLineIndex)
	}
	if c.UsernameFragment != nil {
		data["usernameFragment"] = *c.UsernameFragment
	}
	return data
}

func (c *FirestoreChannel) Listen(fn func(Record)) (func(), error) {
	ctx, cancel := context.WithCancel(c.signal.ctx)
	it := c.docRef.Snapshots(ctx)

	sub := newSubscription(func(_ string, record Record) {
		fn(record)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer it.Stop()

		for {
			snapshot, err := it.Next()
			if err != nil {
				if !isStopped(err) {
					c.logger.Warn("call record listener stopped", zap.Error(err))
				}
				return
			}
			if !snapshot.Exists() {
				continue
			}

			var record Record
			if err := snapshot.DataTo(&record); err != nil {
				c.logger.Warn("failed to decode call record", zap.Error(err))
				continue
			}
			sub.push(c.callID, record)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			sub.close()
		})
	}, nil
}

// FirestoreWatcher reports added and modified call documents of a match.
type FirestoreWatcher struct {
	signal *FirestoreSignal
	calls  *firestore.CollectionRef
	logger *zap.Logger
}

func (w *FirestoreWatcher) WatchCalls(ctx context.Context, fn func(callID string, record Record)) (func(), error) {
	watchCtx, cancel := context.WithCancel(ctx)
	it := w.calls.Snapshots(watchCtx)

	sub := newSubscription(fn)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer it.Stop()

		for {
			snapshot, err := it.Next()
			if err != nil {
				if !isStopped(err) {
					w.logger.Warn("call watcher stopped", zap.Error(err))
				}
				return
			}

			for _, change := range snapshot.Changes {
				if change.Kind == firestore.DocumentRemoved {
					continue
				}

				var record Record
				if err := change.Doc.DataTo(&record); err != nil {
					w.logger.Warn("failed to decode call record", zap.String("call_id", change.Doc.Ref.ID), zap.Error(err))
					continue
				}
				sub.push(change.Doc.Ref.ID, record)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			sub.close()
		})
	}, nil
}

func isStopped(err error) bool {
	return errors.Is(err, iterator.Done) || errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled
}
