/*
	remote-flasher
	Copyright (c) 2026 OpenBlock Community.  All right reserved.

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package transport

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Failover tries Primary first and, on a transport-level failure, Fallback
// exactly once. HTTP error statuses are not failures at this level and are
// returned as they are.
type Failover struct {
	Primary  Transport
	Fallback Transport
	Logger   logrus.FieldLogger
}

// NewFailover creates the policy. A nil fallback disables the second attempt.
func NewFailover(primary, fallback Transport, logger logrus.FieldLogger) *Failover {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Failover{Primary: primary, Fallback: fallback, Logger: logger}
}

// Do performs the request with the failover policy.
func (f *Failover) Do(ctx context.Context, req *Request) (*Response, error) {
	res, err := f.Primary.Do(ctx, req)
	if err == nil {
		return res, nil
	}
	var primaryErr *Error
	if !errors.As(err, &primaryErr) || f.Fallback == nil || ctx.Err() != nil {
		return nil, err
	}

	log := f.Logger.WithField("method", req.Method).WithField("path", req.Path)
	log.WithError(err).Warn("Direct request failed, trying fallback transport")
	res, fallbackErr := f.Fallback.Do(ctx, req)
	if fallbackErr == nil {
		log.Info("Fallback transport succeeded")
		return res, nil
	}
	log.WithError(fallbackErr).Error("Fallback transport also failed")
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, &Error{
		Kind:     primaryErr.Kind,
		Op:       primaryErr.Op,
		Err:      primaryErr.Err,
		Fallback: fallbackErr,
	}
}
