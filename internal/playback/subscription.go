package playback

const eventBufferSize = 16

// Subscription provides event channels for a subscriber.
type Subscription struct {
	StateChanged    <-chan StateChange
	PositionChanged <-chan PositionChange
	ChapterChanged  <-chan ChapterChange
	SleepChanged    <-chan SleepChange
	Finished        <-chan FinishedEvent
	Error           <-chan ErrorEvent
	Done            <-chan struct{}

	// Internal write channels
	stateCh    chan StateChange
	positionCh chan PositionChange
	chapterCh  chan ChapterChange
	sleepCh    chan SleepChange
	finishedCh chan FinishedEvent
	errorCh    chan ErrorEvent
	doneCh     chan struct{}
}

// newSubscription creates a new subscription with buffered channels.
func newSubscription() *Subscription {
	s := &Subscription{
		stateCh:    make(chan StateChange, eventBufferSize),
		positionCh: make(chan PositionChange, eventBufferSize),
		chapterCh:  make(chan ChapterChange, eventBufferSize),
		sleepCh:    make(chan SleepChange, eventBufferSize),
		finishedCh: make(chan FinishedEvent, eventBufferSize),
		errorCh:    make(chan ErrorEvent, eventBufferSize),
		doneCh:     make(chan struct{}),
	}
	s.StateChanged = s.stateCh
	s.PositionChanged = s.positionCh
	s.ChapterChanged = s.chapterCh
	s.SleepChanged = s.sleepCh
	s.Finished = s.finishedCh
	s.Error = s.errorCh
	s.Done = s.doneCh
	return s
}

// close signals subscribers to stop by closing doneCh.
func (s *Subscription) close() {
	close(s.doneCh)
}

// sendState sends a state change event (non-blocking).
func (s *Subscription) sendState(e StateChange) {
	select {
	case s.stateCh <- e:
	default:
		// Drop if buffer full
	}
}

// sendPosition sends a position change event (non-blocking).
func (s *Subscription) sendPosition(e PositionChange) {
	select {
	case s.positionCh <- e:
	default:
	}
}

// sendChapter sends a chapter change event (non-blocking).
func (s *Subscription) sendChapter(e ChapterChange) {
	select {
	case s.chapterCh <- e:
	default:
	}
}

// sendSleep sends a sleep timer event (non-blocking).
func (s *Subscription) sendSleep(e SleepChange) {
	select {
	case s.sleepCh <- e:
	default:
	}
}

// sendFinished sends a finish event (non-blocking).
func (s *Subscription) sendFinished(e FinishedEvent) {
	select {
	case s.finishedCh <- e:
	default:
	}
}

// sendError sends an error event (non-blocking).
func (s *Subscription) sendError(e ErrorEvent) {
	select {
	case s.errorCh <- e:
	default:
	}
}
