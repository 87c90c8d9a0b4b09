package platform

import "time"

// pollDeadline is how far in the future we set a UDP read deadline to turn
// a blocking socket read into a non-blocking poll, matching the Platform
// contract that Recv never suspends and instead returns ErrEmpty.
const pollDeadline = 200 * time.Microsecond

func deadlineNonBlocking() time.Time {
	return time.Now().Add(pollDeadline)
}
